package issuer

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/go-chi/chi/v5"
)

// API is a HTTP API over the card management facade
type API struct {
	manager *Manager
}

func NewAPI(manager *Manager) *API {
	return &API{
		manager: manager,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Post("/", a.login)
		r.Delete("/", a.logout)
	})
	r.Route("/cards", func(r chi.Router) {
		r.Get("/", a.getCards)
		r.Route("/{cardID}", func(r chi.Router) {
			r.Get("/", a.getCard)
			r.Get("/transitions", a.getTransitions)
			r.Post("/activate", a.activateCard)
			r.Post("/suspend", a.suspendCard)
			r.Post("/revoke", a.revokeCard)
			r.Get("/digitization", a.getDigitizationState)
			r.Post("/wallet", a.addToWallet)
		})
	})
	r.Post("/provisioning", a.configurePushProvisioning)
}

type cardResponse struct {
	ID                  string             `json:"id"`
	State               models.CardState   `json:"state"`
	PanLast4Digits      string             `json:"pan_last4_digits"`
	ExpiryDate          string             `json:"expiry_date"`
	CardholderName      string             `json:"cardholder_name"`
	CardFace            string             `json:"card_face"`
	PossibleTransitions []models.CardState `json:"possible_transitions"`
}

func newCardResponse(c Card) cardResponse {
	return cardResponse{
		ID:                  c.ID,
		State:               c.State,
		PanLast4Digits:      c.PanLast4Digits,
		ExpiryDate:          c.ExpiryDate.String(),
		CardholderName:      c.CardholderName,
		CardFace:            formatCardFace(c.ExpiryDate, c.CardholderName),
		PossibleTransitions: c.PossibleTransitions(),
	}
}

// formatCardFace returns "MM/YY NAME", or just "MM/YY" when the name is empty.
func formatCardFace(exp models.ExpiryDate, name string) string {
	face := exp.String()
	if name != "" {
		face += " " + name
	}
	return face
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := a.manager.login(r.Context(), body.Token)
	if err != nil {
		writeCancelled(w, err)
		return
	}
	if !ok {
		writeOperationError(w, AuthenticationFailed{})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.manager.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getCards(w http.ResponseWriter, r *http.Request) {
	var states []models.CardState
	for _, s := range r.URL.Query()["state"] {
		state, err := models.ParseCardState(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		states = append(states, state)
	}

	res, err := a.manager.GetCards(r.Context(), states...)
	if err != nil {
		writeCancelled(w, err)
		return
	}
	if !res.Succeeded() {
		writeOperationError(w, res.Err())
		return
	}

	cards := make([]cardResponse, 0, len(res.Value()))
	for _, c := range res.Value() {
		cards = append(cards, newCardResponse(c))
	}
	writeJSON(w, http.StatusOK, cards)
}

// card resolves the {cardID} path parameter. It writes the response and
// returns false when the card could not be fetched.
func (a *API) card(w http.ResponseWriter, r *http.Request) (Card, bool) {
	res, err := a.manager.GetCard(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		writeCancelled(w, err)
		return Card{}, false
	}
	if !res.Succeeded() {
		writeOperationError(w, res.Err())
		return Card{}, false
	}
	return res.Value(), true
}

func (a *API) getCard(w http.ResponseWriter, r *http.Request) {
	card, ok := a.card(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCardResponse(card))
}

func (a *API) getTransitions(w http.ResponseWriter, r *http.Request) {
	card, ok := a.card(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, card.PossibleTransitions())
}

func (a *API) activateCard(w http.ResponseWriter, r *http.Request) {
	a.changeState(w, r, func(c Card, _ models.Reason) (OperationResult[Unit], error) {
		return c.Activate(r.Context())
	})
}

func (a *API) suspendCard(w http.ResponseWriter, r *http.Request) {
	a.changeState(w, r, func(c Card, reason models.Reason) (OperationResult[Unit], error) {
		return c.Suspend(r.Context(), reason)
	})
}

func (a *API) revokeCard(w http.ResponseWriter, r *http.Request) {
	a.changeState(w, r, func(c Card, reason models.Reason) (OperationResult[Unit], error) {
		return c.Revoke(r.Context(), reason)
	})
}

func (a *API) changeState(w http.ResponseWriter, r *http.Request, op func(Card, models.Reason) (OperationResult[Unit], error)) {
	var body struct {
		Reason models.Reason `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	card, ok := a.card(w, r)
	if !ok {
		return
	}

	res, err := op(card, body.Reason)
	if err != nil {
		writeCancelled(w, err)
		return
	}
	if !res.Succeeded() {
		writeOperationError(w, res.Err())
		return
	}

	// the card value is a snapshot, read the new state back from the network
	updated, ok := a.card(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCardResponse(updated))
}

func (a *API) getDigitizationState(w http.ResponseWriter, r *http.Request) {
	card, ok := a.card(w, r)
	if !ok {
		return
	}

	res, err := card.DigitizationState(r.Context())
	if err != nil {
		writeCancelled(w, err)
		return
	}
	if !res.Succeeded() {
		writeOperationError(w, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.DigitizationState{"state": res.Value()})
}

func (a *API) addToWallet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"display_name"`
		Address     string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	card, ok := a.card(w, r)
	if !ok {
		return
	}

	res, err := card.AddToWallet(r.Context(), network.WalletRequest{
		DisplayName: body.DisplayName,
		Address:     body.Address,
	})
	if err != nil {
		writeCancelled(w, err)
		return
	}
	if !res.Succeeded() {
		writeOperationError(w, res.Err())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) configurePushProvisioning(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WalletProvider string `json:"wallet_provider"`
		IssuerID       string `json:"issuer_id"`
		Environment    string `json:"environment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := a.manager.ConfigurePushProvisioning(r.Context(), network.PushProvisioningConfig{
		WalletProvider: body.WalletProvider,
		IssuerID:       body.IssuerID,
		Environment:    body.Environment,
	})
	if err != nil {
		writeCancelled(w, err)
		return
	}
	if !res.Succeeded() {
		writeOperationError(w, res.Err())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// operationStatus maps a failure variant to the HTTP status returned for it.
func operationStatus(err OperationError) int {
	switch err.(type) {
	case Unauthenticated, AuthenticationFailed:
		return http.StatusUnauthorized
	case Misconfigured:
		return http.StatusBadRequest
	case InvalidStateTransition:
		return http.StatusConflict
	case UnsupportedAPIVersion:
		return http.StatusNotImplemented
	case ProvisioningFailed:
		return http.StatusUnprocessableEntity
	case ConnectionFailed, DigitizationStateFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeOperationError(w http.ResponseWriter, err OperationError) {
	writeJSON(w, operationStatus(err), errorResponse{
		Error: err.Error(),
		Kind:  err.ManagementError().Kind.String(),
	})
}

func writeCancelled(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrCancelled) {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
