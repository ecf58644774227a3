package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upstreampay/payrouter/internal/dispute"
	"github.com/upstreampay/payrouter/internal/domain"
)

type stubDisputes struct {
	dispute    domain.Dispute
	response   dispute.ResponseResult
	resolution dispute.ResolutionResult
	err        error
}

func (s *stubDisputes) Open(ctx context.Context, typ domain.DisputeType, amount float64, traderID, counterpartyID string) (domain.Dispute, error) {
	return s.dispute, s.err
}

func (s *stubDisputes) ProcessTraderResponse(ctx context.Context, disputeID string, action domain.TraderAction, note, proofRef string) (dispute.ResponseResult, error) {
	return s.response, s.err
}

func (s *stubDisputes) AdminResolve(ctx context.Context, disputeID string, decision domain.AdminDecision, note, adminID string) (dispute.ResolutionResult, error) {
	return s.resolution, s.err
}

func (s *stubDisputes) Get(ctx context.Context, disputeID string) (domain.Dispute, error) {
	return s.dispute, s.err
}

func postJSONPath(t *testing.T, h http.HandlerFunc, id string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestOpenDispute(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		stub := &stubDisputes{dispute: domain.Dispute{
			ID: "d-1", Type: domain.DisputePayin, Amount: 5000,
			Status: domain.DisputeRoutedToTrader,
		}}
		h := NewDisputeHandler(stub, testLogger())

		w := postJSON(t, h.Open, map[string]any{
			"type": "payin", "amount": 5000, "traderId": "tr-1", "counterpartyId": "cp-1",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var got domain.Dispute
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "d-1", got.ID)
	})

	t.Run("validation", func(t *testing.T) {
		h := NewDisputeHandler(&stubDisputes{}, testLogger())
		tests := []struct {
			name string
			body map[string]any
		}{
			{"bad type", map[string]any{"type": "chargeback", "amount": 100, "traderId": "tr-1"}},
			{"non-positive amount", map[string]any{"type": "payin", "amount": 0, "traderId": "tr-1"}},
			{"missing trader", map[string]any{"type": "payin", "amount": 100}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := postJSON(t, h.Open, tt.body)
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})
}

func TestGetDispute_NotFound(t *testing.T) {
	h := NewDisputeHandler(&stubDisputes{err: domain.ErrDisputeNotFound}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("id", "nope")
	w := httptest.NewRecorder()
	h.Get(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTraderResponse(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		stub := &stubDisputes{response: dispute.ResponseResult{
			DisputeID: "d-1", NewStatus: domain.DisputeTraderAccepted,
		}}
		h := NewDisputeHandler(stub, testLogger())

		w := postJSONPath(t, h.TraderResponse, "d-1", map[string]any{"action": "accept"})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown action", func(t *testing.T) {
		h := NewDisputeHandler(&stubDisputes{}, testLogger())
		w := postJSONPath(t, h.TraderResponse, "d-1", map[string]any{"action": "maybe"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("already responded", func(t *testing.T) {
		h := NewDisputeHandler(&stubDisputes{err: domain.ErrInvalidDisputeTransition}, testLogger())
		w := postJSONPath(t, h.TraderResponse, "d-1", map[string]any{"action": "accept"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestAdminResolve(t *testing.T) {
	t.Run("resolved with balance change", func(t *testing.T) {
		stub := &stubDisputes{resolution: dispute.ResolutionResult{
			DisputeID: "d-1",
			Status:    domain.DisputeAdminApproved,
			BalanceChanges: []domain.BalanceChange{{
				EntityType: "trader", EntityID: "tr-1",
				Type: domain.ChangeCredit, Amount: 5000,
			}},
		}}
		h := NewDisputeHandler(stub, testLogger())

		w := postJSONPath(t, h.AdminResolve, "d-1", map[string]any{
			"decision": "approve", "adminId": "admin-1",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var got dispute.ResolutionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got.BalanceChanges, 1)
		assert.Equal(t, 5000.0, got.BalanceChanges[0].Amount)
	})

	t.Run("unknown decision", func(t *testing.T) {
		h := NewDisputeHandler(&stubDisputes{}, testLogger())
		w := postJSONPath(t, h.AdminResolve, "d-1", map[string]any{"decision": "escalate"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("concurrent resolution blocked", func(t *testing.T) {
		h := NewDisputeHandler(&stubDisputes{err: domain.ErrLockHeld}, testLogger())
		w := postJSONPath(t, h.AdminResolve, "d-1", map[string]any{"decision": "approve"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
