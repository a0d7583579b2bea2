package issuer

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alovak/cardflow-issuing/network"
	"github.com/alovak/cardflow-issuing/sandbox"
	"github.com/go-chi/chi/v5"
)

// DevAPI exposes sandbox fixtures that a real card network would own:
// sessions, issued cards, single-use tokens and the device clipboard.
type DevAPI struct {
	network *sandbox.Service
	manager *Manager
}

func NewDevAPI(svc *sandbox.Service, manager *Manager) *DevAPI {
	return &DevAPI{network: svc, manager: manager}
}

func (d *DevAPI) AppendRoutes(r chi.Router) {
	r.Post("/sessions", d.addSession)
	r.Post("/cards", d.issueCard)
	r.Post("/cards/{cardID}/single-use-tokens", d.issueSingleUseToken)
	r.Get("/clipboard", d.clipboard)
	r.Post("/wallet/results", d.walletResult)
}

func (d *DevAPI) addSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	d.network.AddSession(body.Token)
	w.WriteHeader(http.StatusNoContent)
}

// IssuedCard is the dev view of a sandbox card, PAN excluded.
type IssuedCard struct {
	ID             string         `json:"id"`
	Last4          string         `json:"last4"`
	ExpiryYYMM     string         `json:"expiry_yymm"`
	CardholderName string         `json:"cardholder_name"`
	Status         network.Status `json:"status"`
}

func (d *DevAPI) issueCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner          string `json:"owner"`
		CardholderName string `json:"cardholder_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	card, err := d.network.IssueCard(r.Context(), body.Owner, body.CardholderName)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, IssuedCard{
		ID:             card.ID,
		Last4:          card.Last4,
		ExpiryYYMM:     card.ExpiryYYMM,
		CardholderName: card.CardholderName,
		Status:         card.Status,
	})
}

func (d *DevAPI) issueSingleUseToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner string `json:"owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := d.network.IssueSingleUseToken(r.Context(), body.Owner, chi.URLParam(r, "cardID"))
	if err != nil {
		var nerr *network.Error
		if errors.As(err, &nerr) && nerr.Kind == network.ErrorKindUnauthenticated {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		} else {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (d *DevAPI) clipboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"content": d.network.Clipboard()})
}

func (d *DevAPI) walletResult(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestCode int               `json:"request_code"`
		ResultCode  int               `json:"result_code"`
		Data        map[string]string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handled := d.manager.HandleWalletResult(r.Context(), network.WalletResult{
		RequestCode: body.RequestCode,
		ResultCode:  body.ResultCode,
		Data:        body.Data,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"handled": handled})
}
