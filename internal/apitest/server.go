// Package apitest provides an in-memory storefront API for tests.
//
// The server implements the auth, cart and item endpoints with the same
// request and response shapes as the production backend, and adds hooks to
// inject failures, observe traffic and stall individual requests.
package apitest

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

// Route keys accepted by FailNext, Hits and hooks.
const (
	RouteRegister   = "POST /auth/register"
	RouteLogin      = "POST /auth/login"
	RouteProfile    = "GET /auth/profile"
	RouteGetCart    = "GET /cart"
	RouteAddItem    = "POST /cart/add"
	RouteUpdateItem = "PUT /cart/update"
	RouteRemoveItem = "DELETE /cart/remove/{itemId}"
	RouteClearCart  = "DELETE /cart/clear"
	RouteListItems  = "GET /items"
	RouteGetItem    = "GET /items/{id}"
)

type account struct {
	user     session.User
	password string
}

type failure struct {
	status  int
	message string
}

// Server is a fake storefront backend mounted under /api.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	accounts map[string]*account // by email
	tokens   map[string]string   // token -> user id
	carts    map[string]*cart.Cart
	items    []catalog.Item
	failures map[string][]failure
	hits     map[string]int
	hook     func(route string, r *http.Request)
	now      func() time.Time
}

// NewServer starts a fake API seeded with DefaultItems. It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		carts:    make(map[string]*cart.Cart),
		items:    DefaultItems(),
		failures: make(map[string][]failure),
		hits:     make(map[string]int),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handle(RouteRegister, s.register))
		r.Post("/auth/login", s.handle(RouteLogin, s.login))
		r.Get("/auth/profile", s.handle(RouteProfile, s.authed(s.profile)))

		r.Get("/cart", s.handle(RouteGetCart, s.authed(s.getCart)))
		r.Post("/cart/add", s.handle(RouteAddItem, s.authed(s.addItem)))
		r.Put("/cart/update", s.handle(RouteUpdateItem, s.authed(s.updateItem)))
		r.Delete("/cart/remove/{itemId}", s.handle(RouteRemoveItem, s.authed(s.removeItem)))
		r.Delete("/cart/clear", s.handle(RouteClearCart, s.authed(s.clearCart)))

		r.Get("/items", s.handle(RouteListItems, s.listItems))
		r.Get("/items/{id}", s.handle(RouteGetItem, s.getItem))
	})

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// BaseURL is the API root to configure clients with.
func (s *Server) BaseURL() string {
	return s.srv.URL + "/api"
}

// Close shuts the server down early.
func (s *Server) Close() {
	s.srv.Close()
}

// AddUser creates an account and returns a valid token for it.
func (s *Server) AddUser(name, email, password string) (session.User, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := session.User{ID: uuid.NewString(), Name: name, Email: email}
	s.accounts[strings.ToLower(email)] = &account{user: u, password: password}
	tok := s.issueToken(u.ID)
	return u, tok
}

// SetItems replaces the catalog.
func (s *Server) SetItems(items []catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]catalog.Item(nil), items...)
}

// RevokeTokens invalidates every issued token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// FailNext makes the next request to route fail with status and message.
// Calls queue up: n calls fail the next n requests.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, message: message})
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// SetHook installs fn to run at the start of every request, before failure
// injection and handling. It may block to stall a request.
func (s *Server) SetHook(fn func(route string, r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Cart returns a copy of the server-side cart of userID, or nil.
func (s *Server) Cart(userID string) *cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[userID].Clone()
}

func (s *Server) handle(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		hook := s.hook
		s.mu.Unlock()

		if hook != nil {
			hook(route, r)
		}

		s.mu.Lock()
		var f *failure
		if q := s.failures[route]; len(q) > 0 {
			f = &q[0]
			s.failures[route] = q[1:]
		}
		s.mu.Unlock()

		if f != nil {
			writeMessage(w, f.status, f.message)
			return
		}
		h(w, r)
	}
}

func (s *Server) authed(h func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tok == "" {
			writeMessage(w, http.StatusUnauthorized, "No token, authorization denied")
			return
		}
		s.mu.Lock()
		userID, found := s.tokens[tok]
		s.mu.Unlock()
		if !found {
			writeMessage(w, http.StatusUnauthorized, "Token is not valid")
			return
		}
		h(w, r, userID)
	}
}

func (s *Server) issueToken(userID string) string {
	tok := "tok-" + uuid.NewString()
	s.tokens[tok] = userID
	return tok
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" || req.Email == "" || len(req.Password) < 6 {
		writeMessage(w, http.StatusBadRequest, "Name, email and a password of at least 6 characters are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, exists := s.accounts[key]; exists {
		writeMessage(w, http.StatusBadRequest, "User already exists")
		return
	}
	u := session.User{ID: uuid.NewString(), Name: req.Name, Email: req.Email}
	s.accounts[key] = &account{user: u, password: req.Password}
	writeJSON(w, http.StatusCreated, session.AuthResponse{
		Message: "User registered successfully",
		Token:   s.issueToken(u.ID),
		User:    u,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || acct.password != req.Password {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, session.AuthResponse{
		Message: "Login successful",
		Token:   s.issueToken(acct.user.ID),
		User:    acct.user,
	})
}

func (s *Server) profile(w http.ResponseWriter, _ *http.Request, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == userID {
			writeJSON(w, http.StatusOK, map[string]any{"user": acct.user})
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "User not found")
}

// cartFor returns the cart of userID, creating an empty one. Caller holds s.mu.
func (s *Server) cartFor(userID string) *cart.Cart {
	c, ok := s.carts[userID]
	if !ok {
		now := s.now()
		c = &cart.Cart{ID: uuid.NewString(), User: userID, Items: []cart.Line{}, CreatedAt: now, UpdatedAt: now}
		s.carts[userID] = c
	}
	return c
}

// findItem returns the catalog item with id. Caller holds s.mu.
func (s *Server) findItem(id string) (catalog.Item, bool) {
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return catalog.Item{}, false
}

// touch recomputes the total and stamps the cart. Caller holds s.mu.
func (s *Server) touch(c *cart.Cart) {
	total := 0.0
	for _, l := range c.Items {
		total += l.Item.Price * float64(l.Quantity)
	}
	c.TotalAmount = math.Round(total*100) / 100
	c.UpdatedAt = s.now()
}

func (s *Server) getCart(w http.ResponseWriter, _ *http.Request, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.cartFor(userID))
}

type lineRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request, userID string) {
	var req lineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Quantity < 1 {
		writeMessage(w, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.findItem(req.ItemID)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Item not found")
		return
	}
	c := s.cartFor(userID)
	idx := -1
	for i, l := range c.Items {
		if l.Item.ID == item.ID {
			idx = i
			break
		}
	}
	existing := 0
	if idx >= 0 {
		existing = c.Items[idx].Quantity
	}
	if existing+req.Quantity > item.Stock {
		writeMessage(w, http.StatusBadRequest, "Insufficient stock")
		return
	}
	if idx >= 0 {
		c.Items[idx].Quantity += req.Quantity
	} else {
		c.Items = append(c.Items, cart.Line{ID: uuid.NewString(), Item: item, Quantity: req.Quantity})
	}
	s.touch(c)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Item added to cart", "cart": c})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request, userID string) {
	var req lineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Quantity < 1 {
		writeMessage(w, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(userID)
	for i, l := range c.Items {
		if l.Item.ID != req.ItemID {
			continue
		}
		if item, ok := s.findItem(req.ItemID); ok && req.Quantity > item.Stock {
			writeMessage(w, http.StatusBadRequest, "Insufficient stock")
			return
		}
		c.Items[i].Quantity = req.Quantity
		s.touch(c)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Cart updated", "cart": c})
		return
	}
	writeMessage(w, http.StatusNotFound, "Item not found in cart")
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request, userID string) {
	itemID := chi.URLParam(r, "itemId")

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(userID)
	for i, l := range c.Items {
		if l.Item.ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			s.touch(c)
			writeJSON(w, http.StatusOK, map[string]any{"message": "Item removed from cart", "cart": c})
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Item not found in cart")
}

func (s *Server) clearCart(w http.ResponseWriter, _ *http.Request, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(userID)
	c.Items = []cart.Line{}
	s.touch(c)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Cart cleared", "cart": c})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	search := strings.ToLower(q.Get("search"))
	minPrice, _ := strconv.ParseFloat(q.Get("minPrice"), 64)
	maxPrice, _ := strconv.ParseFloat(q.Get("maxPrice"), 64)
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	s.mu.Lock()
	matched := make([]catalog.Item, 0, len(s.items))
	for _, it := range s.items {
		if category != "" && !strings.EqualFold(it.Category, category) {
			continue
		}
		if minPrice > 0 && it.Price < minPrice {
			continue
		}
		if maxPrice > 0 && it.Price > maxPrice {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(it.Name), search) &&
			!strings.Contains(strings.ToLower(it.Description), search) {
			continue
		}
		matched = append(matched, it)
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, catalog.Page{
		Items: matched[start:end],
		Pagination: catalog.Pagination{
			CurrentPage: page,
			TotalPages:  pages,
			TotalItems:  total,
			HasNext:     page < pages,
			HasPrev:     page > 1,
		},
	})
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.findItem(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// DefaultItems returns a small catalog spanning a few categories.
func DefaultItems() []catalog.Item {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(n int, id, name, category string, price float64, stock int, rating float64) catalog.Item {
		ts := base.Add(time.Duration(n) * time.Hour)
		return catalog.Item{
			ID: id, Name: name, Description: name + " for everyday use",
			Price: price, Category: category, Stock: stock, Rating: rating,
			CreatedAt: ts, UpdatedAt: ts,
		}
	}
	return []catalog.Item{
		mk(1, "item-mug", "Ceramic Mug", "kitchen", 8.5, 40, 4.4),
		mk(2, "item-kettle", "Electric Kettle", "kitchen", 39.99, 12, 4.1),
		mk(3, "item-lamp", "Desk Lamp", "home", 24, 3, 4.7),
		mk(4, "item-rug", "Wool Rug", "home", 120, 0, 3.9),
		mk(5, "item-phone", "Smartphone", "electronics", 499, 7, 4.5),
		mk(6, "item-cable", "USB-C Cable", "electronics", 9.99, 100, 4.0),
	}
}
