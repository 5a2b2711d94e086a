// Package compare partitions a source instance's device inventory against a
// target instance's by fingerprint, to find machines that have not been
// migrated yet.
package compare

import (
	"encoding/csv"
	"fmt"
	"io"

	"scmigrate/pkg/fingerprint"
	"scmigrate/pkg/screenconnect"
)

// DeviceRecord describes one source session with no fingerprint match on the
// target instance. It carries the fields an operator needs to identify the
// machine plus the slots the push path forwards to the installer.
type DeviceRecord struct {
	SessionID        string
	Name             string
	NetworkAddress   string
	ClientVersion    string
	Company          string // custom property slot 1
	Site             string // custom property slot 2
	Status           string // custom property slot 8, the migration status
	LastActivityTime string
	Fingerprint      string
}

// Result is the partition of the source inventory. Every source session
// lands in exactly one of matched or missing.
type Result struct {
	Matched int
	Missing []DeviceRecord
}

// Compare builds a fingerprint index of the target sessions and walks the
// source set against it. Duplicate fingerprints on the target side resolve
// last-write-wins in API return order; duplicates are not expected but also
// not rejected (intent unconfirmed in the upstream platform).
func Compare(source, target []screenconnect.Session) Result {
	index := make(map[string]screenconnect.Session, len(target))
	for _, sess := range target {
		index[fp(&sess)] = sess
	}

	var result Result
	for i := range source {
		sess := &source[i]
		if _, ok := index[fp(sess)]; ok {
			result.Matched++
			continue
		}
		result.Missing = append(result.Missing, DeviceRecord{
			SessionID:        sess.SessionID,
			Name:             sess.Name,
			NetworkAddress:   sess.GuestNetworkAddress,
			ClientVersion:    sess.GuestClientVersion,
			Company:          sess.CustomProperty(0),
			Site:             sess.CustomProperty(1),
			Status:           sess.CustomProperty(screenconnect.StatusSlot),
			LastActivityTime: sess.GuestLastActivityTime,
			Fingerprint:      fp(sess),
		})
	}
	return result
}

func fp(s *screenconnect.Session) string {
	return fingerprint.Compute(s.Name, s.GuestNetworkAddress, s.GuestClientVersion)
}

// WriteCSV emits the missing-device list with a header row.
func WriteCSV(w io.Writer, missing []DeviceRecord) error {
	cw := csv.NewWriter(w)
	header := []string{"SessionID", "Name", "NetworkAddress", "ClientVersion", "Company", "Site", "Status", "LastActivityTime", "Fingerprint"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, d := range missing {
		row := []string{d.SessionID, d.Name, d.NetworkAddress, d.ClientVersion, d.Company, d.Site, d.Status, d.LastActivityTime, d.Fingerprint}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
