package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

func TestCallRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, Method, req.Method)

		var msg protocol.Message
		require.NoError(t, json.Unmarshal(req.Params.Message, &msg))
		assert.Equal(t, protocol.MsgLeagueQuery, msg.MessageType)

		reply := protocol.NewReply(protocol.MsgLeagueQueryResponse, "league_manager", &msg)
		reply.Set("success", true)
		result, err := json.Marshal(reply)
		require.NoError(t, err)
		require.NoError(t, json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: req.ID, Result: result}))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(2 * time.Second)
	msg := protocol.New(protocol.MsgLeagueQuery, "player:P01")
	reply, err := client.Call(context.Background(), srv.URL, msg)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.MsgLeagueQueryResponse, reply.MessageType)
	assert.Equal(t, msg.ConversationID, reply.ConversationID)
}

func TestCallEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: 1}))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(2 * time.Second)
	reply, err := client.Call(context.Background(), srv.URL, protocol.New(protocol.MsgAck, "player:P01"))
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestCallRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		require.NoError(t, json.NewEncoder(w).Encode(Response{
			JSONRPC: "2.0",
			ID:      1,
			Error:   &ResponseError{Code: internalErrorCode, Message: "handler exploded"},
		}))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(2 * time.Second)
	_, err := client.Call(context.Background(), srv.URL, protocol.New(protocol.MsgAck, "player:P01"))
	require.Error(t, err)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, internalErrorCode, remote.Code)
	assert.Equal(t, "handler exploded", remote.Message)
}

func TestCallWithRetryDoesNotRetryRemoteErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		require.NoError(t, json.NewEncoder(w).Encode(Response{
			JSONRPC: "2.0",
			ID:      1,
			Error:   &ResponseError{Code: internalErrorCode, Message: "rejected"},
		}))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(2 * time.Second)
	_, err := client.CallWithRetry(context.Background(), srv.URL, protocol.New(protocol.MsgAck, "player:P01"))
	require.Error(t, err)

	var remote *RemoteError
	assert.True(t, errors.As(err, &remote))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestCallWithRetryRecoversFromTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Garbage body: a transport-level failure, retried.
			_, _ = w.Write([]byte("not json at all"))
			return
		}
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var msg protocol.Message
		require.NoError(t, json.Unmarshal(req.Params.Message, &msg))
		reply := protocol.NewReply(protocol.MsgAck, "league_manager", &msg)
		result, err := json.Marshal(reply)
		require.NoError(t, err)
		require.NoError(t, json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: req.ID, Result: result}))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(2 * time.Second)
	reply, err := client.CallWithRetry(context.Background(), srv.URL, protocol.New(protocol.MsgAck, "player:P01"))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.MsgAck, reply.MessageType)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestCallWithRetryHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("still not json"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := NewClient(2 * time.Second)
	_, err := client.CallWithRetry(ctx, srv.URL, protocol.New(protocol.MsgAck, "player:P01"))
	require.Error(t, err)
}

func TestNotifySwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(500 * time.Millisecond)
	// Must not panic or block beyond the timeout.
	client.Notify(context.Background(), srv.URL, protocol.New(protocol.MsgAck, "league_manager"))
}
