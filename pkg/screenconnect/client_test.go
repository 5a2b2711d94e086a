package screenconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGUID = "11111111-1111-1111-1111-111111111111"

type recordedCall struct {
	path   string
	origin string
	secret string
	args   []json.RawMessage
}

func newTestServer(t *testing.T, respond func(op string, args []json.RawMessage) (int, interface{})) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var args []json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		calls = append(calls, recordedCall{
			path:   r.URL.Path,
			origin: r.Header.Get("Origin"),
			secret: r.Header.Get("X-Ctrl-Secret"),
			args:   args,
		})

		status, body := respond(r.URL.Path, args)
		w.WriteHeader(status)
		if body != nil {
			json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestGetSession(t *testing.T) {
	server, calls := newTestServer(t, func(op string, args []json.RawMessage) (int, interface{}) {
		return http.StatusOK, Session{
			SessionID:            "abc-1",
			Name:                 "WS01",
			GuestConnectedCount:  1,
			CustomPropertyValues: []string{"Acme", "", "", "", "", "", "", "MIGRATE"},
		}
	})

	client := NewClient(server.URL, testGUID, "s3cret")
	sess, err := client.GetSession(context.Background(), "abc-1")
	require.NoError(t, err)

	assert.Equal(t, "WS01", sess.Name)
	assert.True(t, sess.Online())
	assert.Equal(t, "MIGRATE", sess.CustomProperty(StatusSlot))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/App_Extensions/"+testGUID+"/Service.ashx/GetSessionDetails", call.path)
	assert.Equal(t, server.URL, call.origin)
	assert.Equal(t, "s3cret", call.secret)
	assert.JSONEq(t, `"abc-1"`, string(call.args[0]))
}

func TestGetSessionNotFound(t *testing.T) {
	server, _ := newTestServer(t, func(op string, args []json.RawMessage) (int, interface{}) {
		return http.StatusOK, json.RawMessage("null") // no such session
	})

	client := NewClient(server.URL, testGUID, "s3cret")
	_, err := client.GetSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSessionsFilter(t *testing.T) {
	server, calls := newTestServer(t, func(op string, args []json.RawMessage) (int, interface{}) {
		return http.StatusOK, []Session{{SessionID: "a"}, {SessionID: "b"}}
	})

	client := NewClient(server.URL, testGUID, "s3cret")
	sessions, err := client.GetSessions(context.Background(), "SessionType = 'Access'")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	require.Len(t, *calls, 1)
	assert.JSONEq(t, `"SessionType = 'Access'"`, string((*calls)[0].args[0]))
}

func TestSetStatusPropertyReadModifyWrite(t *testing.T) {
	server, calls := newTestServer(t, func(op string, args []json.RawMessage) (int, interface{}) {
		if op == "/App_Extensions/"+testGUID+"/Service.ashx/GetSessionDetails" {
			return http.StatusOK, Session{
				SessionID:            "abc-1",
				CustomPropertyValues: []string{"Acme", "HQ", "", "", "", "", "", "MIGRATE"},
			}
		}
		return http.StatusOK, nil
	})

	client := NewClient(server.URL, testGUID, "s3cret")
	require.NoError(t, client.SetStatusProperty(context.Background(), "abc-1", "MIG:SUCCESS"))

	require.Len(t, *calls, 2)
	update := (*calls)[1]
	assert.Equal(t, "/App_Extensions/"+testGUID+"/Service.ashx/UpdateCustomProperties", update.path)

	var props []string
	require.NoError(t, json.Unmarshal(update.args[1], &props))
	// Only the status slot changes; business slots survive the rewrite.
	assert.Equal(t, []string{"Acme", "HQ", "", "", "", "", "", "MIG:SUCCESS"}, props)
}

func TestSetStatusPropertyPadsShortArrays(t *testing.T) {
	server, calls := newTestServer(t, func(op string, args []json.RawMessage) (int, interface{}) {
		if op == "/App_Extensions/"+testGUID+"/Service.ashx/GetSessionDetails" {
			return http.StatusOK, Session{SessionID: "abc-1", CustomPropertyValues: []string{"Acme"}}
		}
		return http.StatusOK, nil
	})

	client := NewClient(server.URL, testGUID, "s3cret")
	require.NoError(t, client.SetStatusProperty(context.Background(), "abc-1", "MIG:MANUAL"))

	var props []string
	require.NoError(t, json.Unmarshal((*calls)[1].args[1], &props))
	require.Len(t, props, NumCustomProperties)
	assert.Equal(t, "MIG:MANUAL", props[StatusSlot])
}

func TestRunCommand(t *testing.T) {
	server, calls := newTestServer(t, func(op string, args []json.RawMessage) (int, interface{}) {
		return http.StatusOK, nil
	})

	client := NewClient(server.URL, testGUID, "s3cret")
	require.NoError(t, client.RunCommand(context.Background(), "abc-1", "#!ps\nWrite-Host hi\n"))

	require.Len(t, *calls, 1)
	assert.Equal(t, "/App_Extensions/"+testGUID+"/Service.ashx/RunCommand", (*calls)[0].path)
}

func TestUpstreamErrorSurfacesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "extension disabled", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, testGUID, "s3cret")
	_, err := client.GetSession(context.Background(), "abc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "extension disabled")
}
