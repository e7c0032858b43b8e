package authorizer

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Decline codes written in 422 responses.
const (
	CodeCardNotFound        = "CARTAO_INEXISTENTE"
	CodeInvalidPassword     = "SENHA_INVALIDA"
	CodeInsufficientBalance = "SALDO_INSUFICIENTE"
)

// API is a HTTP API for the authorizer service
type API struct {
	service     *Service
	credentials map[string]string
}

// NewAPI builds the API. With no credentials the routes are left open.
func NewAPI(service *Service, credentials map[string]string) *API {
	return &API{
		service:     service,
		credentials: credentials,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if len(a.credentials) > 0 {
			r.Use(middleware.BasicAuth("authorizer", a.credentials))
		}
		r.Route("/cartoes", func(r chi.Router) {
			r.Post("/", a.createCard)
			r.Get("/{cardNumber}", a.getBalance)
		})
		r.Post("/transacoes", a.processTransaction)
	})
}

func (a *API) createCard(w http.ResponseWriter, r *http.Request) {
	create := models.CreateCard{}
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if create.Number == "" || create.Password == "" {
		http.Error(w, "numeroCartao and senha are required", http.StatusBadRequest)
		return
	}

	card, err := a.service.CreateCard(r.Context(), create)
	if err != nil {
		var exists *models.AlreadyExistsError
		if errors.As(err, &exists) {
			writeJSON(w, http.StatusUnprocessableEntity, cardResponse(exists.Card))
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, cardResponse(card))
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	cardNumber := chi.URLParam(r, "cardNumber")

	balance, err := a.service.GetBalance(r.Context(), cardNumber)
	if err != nil {
		if errors.Is(err, models.ErrCardNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	// a bare JSON number, always with two decimals
	w.Write([]byte(balance.StringFixed(2)))
}

func (a *API) processTransaction(w http.ResponseWriter, r *http.Request) {
	req := models.TransactionRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := a.service.ProcessTransaction(r.Context(), req)
	switch {
	case err == nil:
		writeText(w, http.StatusCreated, "OK")
	case errors.Is(err, models.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrCardNotFound):
		writeText(w, http.StatusUnprocessableEntity, CodeCardNotFound)
	case errors.Is(err, models.ErrInvalidPassword):
		writeText(w, http.StatusUnprocessableEntity, CodeInvalidPassword)
	case errors.Is(err, models.ErrInsufficientBalance):
		writeText(w, http.StatusUnprocessableEntity, CodeInsufficientBalance)
	case errors.Is(err, models.ErrRetriesExhausted):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func cardResponse(card *models.Card) models.CardResponse {
	return models.CardResponse{
		Password: card.Password,
		Number:   card.Number,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
