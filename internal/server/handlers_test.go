package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlens/fundlens/internal/modules/ledger"
	"github.com/fundlens/fundlens/internal/modules/positions"
	testhelpers "github.com/fundlens/fundlens/internal/testing"
)

func newTransactionTestHandlers(t *testing.T) (*Handlers, *ledger.Repository, *positions.Repository, func()) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	ledgerDB, cleanLedger := testhelpers.NewTestDB(t, "ledger")
	profileDB, cleanProfile := testhelpers.NewTestDB(t, "profile")

	ledgerRepo := ledger.NewRepository(ledgerDB.Conn(), log)
	positionRepo := positions.NewRepository(profileDB.Conn(), log)
	recomputer := positions.NewRecomputer(ledgerRepo, positionRepo, log)

	h := NewHandlers(nil, ledgerRepo, positionRepo, recomputer, nil, nil, nil, nil, log)
	cleanup := func() {
		cleanProfile()
		cleanLedger()
	}
	return h, ledgerRepo, positionRepo, cleanup
}

func postTransaction(t *testing.T, h *Handlers, customerID, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Post("/api/customers/{customerID}/transactions", h.HandleAppendTransaction)

	req := httptest.NewRequest(http.MethodPost, "/api/customers/"+customerID+"/transactions",
		strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleAppendTransaction_AppendsAndProjects(t *testing.T) {
	h, ledgerRepo, positionRepo, cleanup := newTransactionTestHandlers(t)
	defer cleanup()

	w := postTransaction(t, h, "cust-001",
		`{"instrument_code":"FND-EQ-01","kind":"purchase","amount":"1200","units":"1000"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		ID        string `json:"id"`
		Projected bool   `json:"projected"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.True(t, resp.Projected)

	entries, err := ledgerRepo.GetByCustomer("cust-001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, resp.ID, entries[0].ID)

	// The projection wrote the holding without a full recompute.
	holdings, err := positionRepo.GetByCustomer("cust-001")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "1.2", holdings[0].AverageCost.String())
}

func TestHandleAppendTransaction_RedemptionToZeroRemovesHolding(t *testing.T) {
	h, _, positionRepo, cleanup := newTransactionTestHandlers(t)
	defer cleanup()

	w := postTransaction(t, h, "cust-001",
		`{"instrument_code":"FND-EQ-01","kind":"purchase","amount":"1000","units":"1000"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postTransaction(t, h, "cust-001",
		`{"instrument_code":"FND-EQ-01","kind":"redemption","amount":"1000","units":"1000"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	holdings, err := positionRepo.GetByCustomer("cust-001")
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestHandleAppendTransaction_RejectsInvalidInput(t *testing.T) {
	h, ledgerRepo, _, cleanup := newTransactionTestHandlers(t)
	defer cleanup()

	cases := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"instrument_code":"FND-EQ-01","kind":"transfer","amount":"100","units":"100"}`},
		{"missing instrument", `{"kind":"purchase","amount":"100","units":"100"}`},
		{"non-positive units", `{"instrument_code":"FND-EQ-01","kind":"purchase","amount":"100","units":"0"}`},
		{"malformed amount", `{"instrument_code":"FND-EQ-01","kind":"purchase","amount":"abc","units":"100"}`},
		{"bad timestamp", `{"instrument_code":"FND-EQ-01","kind":"purchase","amount":"100","units":"100","executed_at":"yesterday"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postTransaction(t, h, "cust-001", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	entries, err := ledgerRepo.GetByCustomer("cust-001")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
