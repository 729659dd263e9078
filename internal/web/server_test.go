package web

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wastetrace/wastetrace/internal/api"
	"github.com/wastetrace/wastetrace/internal/classify"
	"github.com/wastetrace/wastetrace/internal/dashboard"
	"github.com/wastetrace/wastetrace/internal/domain"
	"github.com/wastetrace/wastetrace/internal/engine"
	"github.com/wastetrace/wastetrace/internal/identity"
	"github.com/wastetrace/wastetrace/internal/infra/sqlite"
	"github.com/wastetrace/wastetrace/internal/repository"
)

// harness runs the dashboard server against a real backend so the full
// submit → collect → recycle → redeem path is exercised end to end.
type harness struct {
	store   *sqlite.Store
	web     *httptest.Server
	client  *http.Client
	verdict classify.Result
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		verdict: classify.Result{Detected: true, Category: "plastic", Counts: domain.Classification{"plastic": 2}},
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "wastetrace.db"))
	if err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	h.store = store
	seed := []domain.User{
		{ID: "citizen-1", Email: "citizen@demo", Name: "Sarvesh Sapkal", Role: domain.RoleCitizen, EcoPoints: 120},
		{ID: "collector-1", Email: "collector@demo", Name: "Laukika Shinde", Role: domain.RoleCollector},
		{ID: "municipal-1", Email: "municipal@demo", Name: "Shalvi Maheshwari", Role: domain.RoleMunicipality},
	}
	for _, u := range seed {
		if err := store.UpsertUser(u); err != nil {
			t.Fatal(err)
		}
	}

	backend := httptest.NewServer(api.NewServer(store, nil).Handler())
	t.Cleanup(backend.Close)

	classifySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.verdict)
	}))
	t.Cleanup(classifySrv.Close)

	repo := repository.New(backend.URL, nil)
	eng := engine.New(repo, classify.NewClient(classifySrv.URL, nil), nil)
	sessions := identity.NewStore("")
	users := NewUserClient(backend.URL, nil)

	h.web = httptest.NewServer(NewServer(sessions, repo, eng, users).Handler())
	t.Cleanup(h.web.Close)

	// Gate tests need to see the redirect, not follow it.
	h.client = &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func (h *harness) login(t *testing.T, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": "password123"})
	resp, err := h.client.Post(h.web.URL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s status = %d, want 200", email, resp.StatusCode)
	}
	var sess identity.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	return sess.Token
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.web.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (h *harness) submitWaste(t *testing.T, token string) domain.WasteTicket {
	t.Helper()
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("image", "waste.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("jpeg-bytes"))
	mw.WriteField("imageUrl", "waste.jpg")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, h.web.URL+"/citizen/submit", &form)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201", resp.StatusCode)
	}
	var got submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	return got.Ticket
}

// ─── Sessions and Gates ─────────────────────────────────────────────────────

func TestLogin_BadPassword(t *testing.T) {
	h := newHarness(t)
	body, _ := json.Marshal(map[string]string{"email": "citizen@demo", "password": "wrong"})
	resp, err := h.client.Post(h.web.URL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRoleGates(t *testing.T) {
	h := newHarness(t)
	citizen := h.login(t, "citizen@demo")
	collector := h.login(t, "collector@demo")

	tests := []struct {
		name         string
		path         string
		token        string
		wantLocation string
	}{
		{"anonymous to citizen", "/citizen", "", "/login"},
		{"anonymous to municipality", "/municipality", "", "/login"},
		{"citizen to collector", "/collector", citizen, "/unauthorized"},
		{"citizen to municipality", "/municipality", citizen, "/unauthorized"},
		{"collector to citizen", "/citizen", collector, "/unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodGet, tt.path, tt.token, nil)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusFound {
				t.Fatalf("status = %d, want 302", resp.StatusCode)
			}
			if loc := resp.Header.Get("Location"); loc != tt.wantLocation {
				t.Errorf("Location = %q, want %q", loc, tt.wantLocation)
			}
		})
	}
}

func TestLogout_EndsSession(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "citizen@demo")

	resp := h.do(t, http.MethodPost, "/logout", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}

	after := h.do(t, http.MethodGet, "/citizen", token, nil)
	defer after.Body.Close()
	if after.StatusCode != http.StatusFound || after.Header.Get("Location") != "/login" {
		t.Fatalf("post-logout access = %d %q, want 302 /login", after.StatusCode, after.Header.Get("Location"))
	}
}

// ─── Citizen Flow ───────────────────────────────────────────────────────────

func TestCitizenDashboard(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "citizen@demo")

	resp := h.do(t, http.MethodGet, "/citizen", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var view dashboard.CitizenView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.EcoPoints != 120 {
		t.Errorf("EcoPoints = %d, want backend's 120", view.EcoPoints)
	}
	available := map[string]bool{}
	for _, v := range view.Vouchers {
		available[v.ID] = v.Available
	}
	if !available["paytm-50"] || available["amazon-100"] {
		t.Errorf("voucher availability = %v", available)
	}
}

func TestSubmitWaste(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "citizen@demo")

	ticket := h.submitWaste(t, token)
	if !strings.HasPrefix(ticket.WasteID, "WT") {
		t.Errorf("WasteID = %q", ticket.WasteID)
	}
	if ticket.Status != domain.StatusPending {
		t.Errorf("Status = %q, want pending", ticket.Status)
	}

	resp := h.do(t, http.MethodGet, "/citizen", token, nil)
	defer resp.Body.Close()
	var view dashboard.CitizenView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if len(view.Tickets) != 1 || view.Tickets[0].WasteID != ticket.WasteID {
		t.Errorf("dashboard tickets = %+v", view.Tickets)
	}
}

func TestSubmitWaste_NothingDetected(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "citizen@demo")
	h.verdict = classify.Result{Detected: false, Message: "No waste detected"}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, _ := mw.CreateFormFile("image", "empty.jpg")
	part.Write([]byte("jpeg-bytes"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, h.web.URL+"/citizen/submit", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	// Nothing reached the backend.
	tickets, err := h.store.ListTickets()
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 0 {
		t.Errorf("backend holds %d tickets, want 0", len(tickets))
	}
}

func TestRedeemVoucher(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "citizen@demo")

	resp := h.do(t, http.MethodPost, "/citizen/redeem", token, map[string]string{"voucherId": "paytm-50"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redeem status = %d, want 200", resp.StatusCode)
	}
	var result RedeemResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Balance != 20 {
		t.Errorf("Balance = %d, want 20", result.Balance)
	}

	// The dashboard now shows the confirmed balance.
	dash := h.do(t, http.MethodGet, "/citizen", token, nil)
	defer dash.Body.Close()
	var view dashboard.CitizenView
	if err := json.NewDecoder(dash.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.EcoPoints != 20 {
		t.Errorf("EcoPoints after redemption = %d, want 20", view.EcoPoints)
	}

	again := h.do(t, http.MethodPost, "/citizen/redeem", token, map[string]string{"voucherId": "amazon-100"})
	defer again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("overspend status = %d, want 409", again.StatusCode)
	}
}

// ─── Collector Flow ─────────────────────────────────────────────────────────

func TestCollectWaste(t *testing.T) {
	h := newHarness(t)
	citizen := h.login(t, "citizen@demo")
	collector := h.login(t, "collector@demo")
	ticket := h.submitWaste(t, citizen)

	resp := h.do(t, http.MethodPost, "/collector/collect", collector, map[string]string{
		"wasteId": ticket.WasteID, "proofImageUrl": "proof.jpg",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("collect status = %d, want 200", resp.StatusCode)
	}
	var collected domain.WasteTicket
	if err := json.NewDecoder(resp.Body).Decode(&collected); err != nil {
		t.Fatal(err)
	}
	if collected.Status != domain.StatusCollected || collected.CollectorID != "collector-1" {
		t.Errorf("collected = %+v", collected)
	}

	dash := h.do(t, http.MethodGet, "/collector", collector, nil)
	defer dash.Body.Close()
	var view dashboard.CollectorView
	if err := json.NewDecoder(dash.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if len(view.Collected) != 1 || view.CompletedToday != 1 {
		t.Errorf("view = collected %d, today %d", len(view.Collected), view.CompletedToday)
	}
}

func TestCollectWaste_Rejections(t *testing.T) {
	h := newHarness(t)
	citizen := h.login(t, "citizen@demo")
	collector := h.login(t, "collector@demo")
	ticket := h.submitWaste(t, citizen)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
	}{
		{"missing proof", map[string]string{"wasteId": ticket.WasteID}, http.StatusBadRequest},
		{"unknown waste", map[string]string{"wasteId": "WTNOPE00", "proofImageUrl": "p.jpg"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, "/collector/collect", collector, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestDailyProgress(t *testing.T) {
	h := newHarness(t)
	citizen := h.login(t, "citizen@demo")
	collector := h.login(t, "collector@demo")

	first := h.submitWaste(t, citizen)
	second := h.submitWaste(t, citizen)
	for _, wasteID := range []string{first.WasteID, second.WasteID} {
		resp := h.do(t, http.MethodPost, "/collector/collect", collector, map[string]string{
			"wasteId": wasteID, "proofImageUrl": "proof.jpg",
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("setup collect = %d", resp.StatusCode)
		}
	}

	resp := h.do(t, http.MethodPost, "/collector/progress", collector, map[string]string{"proofImageUrl": "done.jpg"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status = %d, want 200", resp.StatusCode)
	}
	var got map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["recycled"] != 2 {
		t.Errorf("recycled = %d, want 2", got["recycled"])
	}

	// Both recycles credited the citizen's backend balance.
	u, err := h.store.GetUser("citizen-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := 120 + 2*domain.EcoPointsPerRecycle; u.EcoPoints != want {
		t.Errorf("citizen balance = %d, want %d", u.EcoPoints, want)
	}
}

func TestDailyProgress_NothingEligible(t *testing.T) {
	h := newHarness(t)
	collector := h.login(t, "collector@demo")

	resp := h.do(t, http.MethodPost, "/collector/progress", collector, map[string]string{"proofImageUrl": "done.jpg"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 no-op", resp.StatusCode)
	}
	var got map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["recycled"] != 0 {
		t.Errorf("recycled = %d, want 0", got["recycled"])
	}
}

// ─── Municipality ───────────────────────────────────────────────────────────

func TestMunicipalityDashboard(t *testing.T) {
	h := newHarness(t)
	citizen := h.login(t, "citizen@demo")
	collector := h.login(t, "collector@demo")
	municipal := h.login(t, "municipal@demo")

	ticket := h.submitWaste(t, citizen)
	h.submitWaste(t, citizen)
	resp := h.do(t, http.MethodPost, "/collector/collect", collector, map[string]string{
		"wasteId": ticket.WasteID, "proofImageUrl": "proof.jpg",
	})
	resp.Body.Close()

	dash := h.do(t, http.MethodGet, "/municipality", municipal, nil)
	defer dash.Body.Close()
	if dash.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", dash.StatusCode)
	}
	var view dashboard.MunicipalityView
	if err := json.NewDecoder(dash.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Counts.Total() != 2 || view.Counts.Collected != 1 {
		t.Errorf("Counts = %+v", view.Counts)
	}
	if view.RecyclingRate != 0 {
		t.Errorf("RecyclingRate = %d, want 0", view.RecyclingRate)
	}
	if len(view.Collectors) != 1 || view.Collectors[0].CollectorID != "collector-1" {
		t.Errorf("Collectors = %+v", view.Collectors)
	}
}
