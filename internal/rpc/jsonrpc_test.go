package rpc

import "testing"

func TestParseRequestRejectsWrongVersion(t *testing.T) {
	_, rpcErr := ParseRequest([]byte(`{"jsonrpc":"1.0","method":"ping"}`))
	if rpcErr == nil || rpcErr.Code != int(ErrInvalidRequest) {
		t.Fatalf("expected invalid request error, got %v", rpcErr)
	}
}

func TestParseRequestRejectsReservedMethodPrefix(t *testing.T) {
	_, rpcErr := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"rpc.internal"}`))
	if rpcErr == nil || rpcErr.Code != int(ErrInvalidRequest) {
		t.Fatalf("expected invalid request error for reserved prefix, got %v", rpcErr)
	}
}

func TestParseRequestRejectsMalformedParams(t *testing.T) {
	_, rpcErr := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"ping","params":"not an object"}`))
	if rpcErr == nil || rpcErr.Code != int(ErrInvalidParams) {
		t.Fatalf("expected invalid params error, got %v", rpcErr)
	}
}

func TestParseRequestAcceptsNotificationWithNoID(t *testing.T) {
	req, rpcErr := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"heartbeat"}`))
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if !req.IsNotification() {
		t.Fatal("expected request with no id to be a notification")
	}
}

func TestParseRequestAcceptsRequestWithID(t *testing.T) {
	req, rpcErr := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"ping","id":7}`))
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if req.IsNotification() {
		t.Fatal("expected request carrying an id to not be a notification")
	}
}

func TestParseMessageDetectsBatch(t *testing.T) {
	items, isBatch, rpcErr := ParseMessage([]byte(`[{"jsonrpc":"2.0","method":"ping","id":1},{"jsonrpc":"2.0","method":"heartbeat"}]`))
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if !isBatch {
		t.Fatal("expected array input to be detected as a batch")
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestParseMessageRejectsEmptyBatch(t *testing.T) {
	_, _, rpcErr := ParseMessage([]byte(`[]`))
	if rpcErr == nil || rpcErr.Code != int(ErrInvalidRequest) {
		t.Fatalf("expected invalid request error for empty batch, got %v", rpcErr)
	}
}

func TestParseMessageSingleRequestIsNotBatch(t *testing.T) {
	items, isBatch, rpcErr := ParseMessage([]byte(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if isBatch {
		t.Fatal("expected single object to not be a batch")
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly 1 item, got %d", len(items))
	}
}
