package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"familyportal-backend/auth-service/services"
	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database/models"
	"familyportal-backend/shared/database/models/auth"
	"familyportal-backend/shared/utils/ratelimit"
	utils "familyportal-backend/shared/utils/auth"
)

const testCookie = "portal_verified"

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &auth.AttemptRecord{}, &auth.SecurityQuestion{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type testEnv struct {
	db        *gorm.DB
	store     ratelimit.Store
	router    *gin.Engine
	questions []auth.SecurityQuestion
}

func setupEnv(t *testing.T, store func(db *gorm.DB) ratelimit.Store) *testEnv {
	t.Helper()
	config.SetConfig(&config.Config{
		JWTSecret:            "handler-test-secret",
		JWTExpireHours:       1,
		PortalSessionMinutes: 30,
	})

	db := setupTestDB(t)
	st := store(db)
	limiter := ratelimit.NewLimiter(st)
	security := services.GateSettings{MaxAttempts: 3, BlockMinutes: 15}
	login := services.GateSettings{MaxAttempts: 5, BlockMinutes: 15}

	portal := services.NewPortalService(db, limiter, security, nil, zap.NewNop())
	logins := services.NewLoginService(db, limiter, login, zap.NewNop())

	router := gin.New()
	RegisterRoutes(router,
		NewAuthHandler(logins, zap.NewNop()),
		NewSecurityHandler(portal, CookieSettings{Name: testCookie}, zap.NewNop()),
		RouteConfig{Limiter: limiter, Security: security, Login: login, CookieName: testCookie})

	return &testEnv{db: db, store: st, router: router}
}

func gormStore(db *gorm.DB) ratelimit.Store { return ratelimit.NewGormStore(db) }

func (e *testEnv) seedQuestions(t *testing.T, answers ...string) {
	t.Helper()
	for i, answer := range answers {
		q := auth.SecurityQuestion{Question: "Q" + answer, Answer: answer, IsActive: true, DisplayOrder: i}
		if err := e.db.Create(&q).Error; err != nil {
			t.Fatalf("failed to seed question: %v", err)
		}
		e.questions = append(e.questions, q)
	}
}

func (e *testEnv) do(t *testing.T, method, path, ip string, body interface{}, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":40000"
	if mutate != nil {
		mutate(req)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestSecurityLockoutScenario(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := setupEnv(t, func(*gorm.DB) ratelimit.Store { return ratelimit.NewRedisStore(client) })
	env.seedQuestions(t, "marie", "rex", "oak")
	wrong := map[string]interface{}{"answers": map[string]string{env.questions[0].ID.String(): "nope"}}

	for i, wantLeft := range []float64{2, 1} {
		w := env.do(t, http.MethodPost, "/api/auth/security/verify", "9.9.9.9", wrong, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d %s", i+1, w.Code, w.Body.String())
		}
		if left := decode(t, w)["attempts_left"]; left != wantLeft {
			t.Errorf("attempt %d: expected attempts_left %v, got %v", i+1, wantLeft, left)
		}
	}

	w := env.do(t, http.MethodPost, "/api/auth/security/verify", "9.9.9.9", wrong, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("attempt 3: expected 429, got %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["blocked"] != true {
		t.Errorf("expected blocked=true, got %v", body["blocked"])
	}
	until, err := time.Parse(time.RFC3339Nano, body["blocked_until"].(string))
	if err != nil {
		t.Fatalf("parse blocked_until: %v", err)
	}
	if ahead := time.Until(until); ahead < 14*time.Minute || ahead > 15*time.Minute+time.Second {
		t.Errorf("expected block about 15 minutes ahead, got %v", ahead)
	}

	w = env.do(t, http.MethodPost, "/api/auth/security/verify", "9.9.9.9", wrong, nil)
	if w.Code != http.StatusTooManyRequests || decode(t, w)["blocked"] != true {
		t.Fatalf("attempt 4: expected blocked 429, got %d %s", w.Code, w.Body.String())
	}

	rec, err := env.store.Get(context.Background(), "9.9.9.9", ratelimit.ActionSecurity)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec == nil || rec.AttemptCount != 3 {
		t.Errorf("expected counter to stay at 3, got %+v", rec)
	}

	w = env.do(t, http.MethodGet, "/api/auth/security/question", "9.9.9.9", nil, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected question endpoint to refuse blocked ip, got %d", w.Code)
	}

	// other addresses are unaffected
	w = env.do(t, http.MethodGet, "/api/auth/security/question", "8.8.8.8", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected other ip to get a question, got %d", w.Code)
	}
}

func TestVerifySuccessSetsCookieAndUnlocksLogin(t *testing.T) {
	env := setupEnv(t, gormStore)
	env.seedQuestions(t, "marie")

	hash, _ := utils.HashPassword("correct horse")
	user := models.User{Email: "mom@family.test", Password: hash, DisplayName: "Mom", Role: models.UserRoleMember, Status: models.UserStatusActive}
	env.db.Create(&user)

	login := map[string]string{"email": "mom@family.test", "password": "correct horse"}
	w := env.do(t, http.MethodPost, "/api/auth/login", "5.5.5.5", login, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without portal cookie, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/auth/security/verify", "5.5.5.5",
		map[string]interface{}{"answers": map[string]string{env.questions[0].ID.String(): " MARIE "}}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if decode(t, w)["verified"] != true {
		t.Error("expected verified=true")
	}

	var portalCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookie {
			portalCookie = c
		}
	}
	if portalCookie == nil {
		t.Fatal("expected portal cookie to be set")
	}
	if !portalCookie.HttpOnly || portalCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie attributes: %+v", portalCookie)
	}
	if portalCookie.MaxAge < 29*60 || portalCookie.MaxAge > 30*60 {
		t.Errorf("expected ~30 minute cookie, got %d seconds", portalCookie.MaxAge)
	}

	withCookie := func(r *http.Request) { r.AddCookie(portalCookie) }

	w = env.do(t, http.MethodGet, "/api/auth/security/status", "5.5.5.5", nil, withCookie)
	if w.Code != http.StatusOK || decode(t, w)["verified"] != true {
		t.Errorf("expected verified status, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/auth/login", "5.5.5.5", login, withCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d %s", w.Code, w.Body.String())
	}
	token, _ := decode(t, w)["token"].(string)

	w = env.do(t, http.MethodGet, "/api/auth/me", "5.5.5.5", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if w.Code != http.StatusOK || decode(t, w)["email"] != "mom@family.test" {
		t.Errorf("unexpected /me response %d %s", w.Code, w.Body.String())
	}

	bad := map[string]string{"email": "mom@family.test", "password": "wrong"}
	w = env.do(t, http.MethodPost, "/api/auth/login", "5.5.5.5", bad, withCookie)
	if w.Code != http.StatusUnauthorized || decode(t, w)["attempts_left"] != float64(4) {
		t.Errorf("expected 401 with 4 attempts left, got %d %s", w.Code, w.Body.String())
	}
}

func TestVerifyValidation(t *testing.T) {
	env := setupEnv(t, gormStore)
	env.seedQuestions(t, "marie")

	w := env.do(t, http.MethodPost, "/api/auth/security/verify", "4.4.4.4", map[string]interface{}{"answers": map[string]string{}}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty answers, got %d", w.Code)
	}

	rec, _ := env.store.Get(context.Background(), "4.4.4.4", ratelimit.ActionSecurity)
	if rec != nil {
		t.Errorf("validation failure must not count, got %+v", rec)
	}
}

func TestQuestionUnavailable(t *testing.T) {
	env := setupEnv(t, gormStore)

	w := env.do(t, http.MethodGet, "/api/auth/security/question", "3.3.3.3", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without questions, got %d", w.Code)
	}
}

func TestQuestionAdminRequiresAdmin(t *testing.T) {
	env := setupEnv(t, gormStore)
	env.seedQuestions(t, "marie", "rex")

	memberToken, _, _ := utils.GenerateJWT(uuid.New(), "kid@family.test", string(models.UserRoleMember))
	adminToken, _, _ := utils.GenerateJWT(uuid.New(), "admin@family.test", string(models.UserRoleAdmin))
	bearer := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}

	if w := env.do(t, http.MethodGet, "/api/auth/security/questions", "2.2.2.2", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/auth/security/questions", "2.2.2.2", nil, bearer(memberToken)); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for member, got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/auth/security/questions", "2.2.2.2",
		map[string]string{"question": "Street?", "answer": "Oak"}, bearer(adminToken))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", w.Code, w.Body.String())
	}
	if _, leaked := decode(t, w)["answer"]; leaked {
		t.Error("answer must not be serialized")
	}

	order := []string{env.questions[1].ID.String(), env.questions[0].ID.String()}
	w = env.do(t, http.MethodPut, "/api/auth/security/questions/reorder", "2.2.2.2",
		map[string]interface{}{"ids": order}, bearer(adminToken))
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 from reorder, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodDelete, "/api/auth/security/questions/not-a-uuid", "2.2.2.2", nil, bearer(adminToken))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", w.Code)
	}
}
