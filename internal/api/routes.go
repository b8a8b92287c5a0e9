package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /api/characters)
	ListCharacters(w http.ResponseWriter, r *http.Request)
	// (POST /api/characters)
	CreateCharacter(w http.ResponseWriter, r *http.Request)
	// (GET /api/characters/search)
	SearchCharacters(w http.ResponseWriter, r *http.Request, params SearchCharactersParams)
	// (GET /api/characters/{id})
	GetCharacter(w http.ResponseWriter, r *http.Request, id int64)
	// (PUT /api/characters/{id})
	UpdateCharacter(w http.ResponseWriter, r *http.Request, id int64)
	// (DELETE /api/characters/{id})
	DeleteCharacter(w http.ResponseWriter, r *http.Request, id int64)
	// (GET /api/journal)
	ListJournal(w http.ResponseWriter, r *http.Request)
}

// SearchCharactersParams defines parameters for SearchCharacters.
type SearchCharactersParams struct {
	Query *string `form:"query,omitempty" json:"query,omitempty"`
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	handler := http.Handler(h)
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

// bindID parses the {id} path parameter.
func (siw *ServerInterfaceWrapper) bindID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var id int64
	err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath, chi.URLParam(r, "id"), &id)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return 0, false
	}
	return id, true
}

// ListCharacters operation middleware
func (siw *ServerInterfaceWrapper) ListCharacters(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.ListCharacters)
}

// CreateCharacter operation middleware
func (siw *ServerInterfaceWrapper) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateCharacter)
}

// SearchCharacters operation middleware
func (siw *ServerInterfaceWrapper) SearchCharacters(w http.ResponseWriter, r *http.Request) {
	var params SearchCharactersParams

	err := runtime.BindQueryParameter("form", true, false, "query", r.URL.Query(), &params.Query)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "query", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.SearchCharacters(w, r, params)
	})
}

// GetCharacter operation middleware
func (siw *ServerInterfaceWrapper) GetCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetCharacter(w, r, id)
	})
}

// UpdateCharacter operation middleware
func (siw *ServerInterfaceWrapper) UpdateCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.UpdateCharacter(w, r, id)
	})
}

// DeleteCharacter operation middleware
func (siw *ServerInterfaceWrapper) DeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.DeleteCharacter(w, r, id)
	})
}

// ListJournal operation middleware
func (siw *ServerInterfaceWrapper) ListJournal(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.ListJournal)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/characters", wrapper.ListCharacters)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/characters", wrapper.CreateCharacter)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/characters/search", wrapper.SearchCharacters)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/characters/{id}", wrapper.GetCharacter)
	})
	r.Group(func(r chi.Router) {
		r.Put(options.BaseURL+"/api/characters/{id}", wrapper.UpdateCharacter)
	})
	r.Group(func(r chi.Router) {
		r.Delete(options.BaseURL+"/api/characters/{id}", wrapper.DeleteCharacter)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/journal", wrapper.ListJournal)
	})

	return r
}
