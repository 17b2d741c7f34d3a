// internal/handlers/api_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mediscan-back/internal/auth"
	"mediscan-back/internal/config"
	"mediscan-back/internal/database"
	"mediscan-back/internal/inference"
	"mediscan-back/internal/models"
	"mediscan-back/internal/storage"
)

type testEnv struct {
	db       *gorm.DB
	store    storage.ObjectStore
	storeDir string
	cfg      *config.Config
	router   *gin.Engine
	modelSrv *httptest.Server
}

// newTestEnv wires the whole stack against an in-memory sqlite database, a
// temp-dir object store and a stub model service.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.MigrateDB(db))

	storeDir := t.TempDir()
	store, err := storage.NewLocalStore(storeDir)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/models/chest-xray/predict", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"predictions": {"Normal": 0.2, "Pneumonia": 0.8}}`)
	})
	mux.HandleFunc("/models/chest-xray/explain", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-heatmap-png"))
	})
	mux.HandleFunc("/models/broken/predict", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	})
	modelSrv := httptest.NewServer(mux)
	t.Cleanup(modelSrv.Close)

	cfg := &config.Config{}
	cfg.App.Name = "Medical AI Diagnostics API"
	cfg.App.Version = "test"
	cfg.App.SecretKey = "test-secret"
	cfg.Auth.TokenExpiryMinutes = 60
	cfg.Storage.MaxUploadSizeMB = 16
	cfg.Storage.UploadsPrefix = "uploads"
	cfg.Storage.HeatmapsPrefix = "heatmaps"
	cfg.Storage.ReportsPrefix = "reports"
	cfg.Models = []config.Model{
		{
			Name:          "chest-xray",
			Endpoint:      modelSrv.URL + "/models/chest-xray",
			Labels:        []string{"Normal", "Pneumonia"},
			ConfThreshold: 0.5,
			// Explanation left empty so creating a prediction never spawns
			// the heatmap goroutine; generateHeatmaps is covered directly.
		},
		{
			Name:     "broken",
			Endpoint: modelSrv.URL + "/models/broken",
			Labels:   []string{"Normal", "Pneumonia"},
		},
	}

	router := NewRouter(db, store, inference.NewClient(zap.NewNop()), cfg, zap.NewNop())

	return &testEnv{db: db, store: store, storeDir: storeDir, cfg: cfg, router: router, modelSrv: modelSrv}
}

func (e *testEnv) createUser(t *testing.T, username, role string) (models.User, string) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := models.User{
		Username:     username,
		Email:        username + "@clinic.test",
		PasswordHash: string(hashed),
		FullName:     "Dr. " + username,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, e.db.Create(&user).Error)

	token, err := auth.GenerateToken(&user, e.cfg.App.SecretKey, time.Hour)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) seedImage(t *testing.T, ownerID uint) models.Image {
	t.Helper()
	objectName := storage.ObjectName(e.cfg.Storage.UploadsPrefix, "scan.png")
	data := pngBytes(t)
	require.NoError(t, e.store.Save(context.Background(), objectName, bytes.NewReader(data), int64(len(data)), "image/png"))

	img := models.Image{
		OwnerID:          ownerID,
		Filename:         objectName,
		OriginalFilename: "scan.png",
		ObjectPath:       objectName,
		FileSize:         int64(len(data)),
		MimeType:         "image/png",
		ImageType:        "X-ray",
		Width:            1,
		Height:           1,
	}
	require.NoError(t, e.db.Create(&img).Error)
	return img
}

func (e *testEnv) seedPrediction(t *testing.T, imageID, userID uint) models.Prediction {
	t.Helper()
	prediction := models.Prediction{
		ImageID:         imageID,
		UserID:          userID,
		ModelName:       "chest-xray",
		Predictions:     models.ConfidenceMap{"Normal": 0.2, "Pneumonia": 0.8},
		ConfidenceScore: 0.8,
		Status:          models.StatusCompleted,
	}
	require.NoError(t, e.db.Create(&prediction).Error)
	return prediction
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doUpload(t *testing.T, token, filename string, content []byte, imageType string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("image_type", imageType))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "house", models.RoleDoctor)

	w := env.doForm(t, "/api/auth/token", url.Values{"username": {"house"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["detail"])
	assert.NotContains(t, body, "access_token")
}

func TestLoginUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.doForm(t, "/api/auth/token", url.Values{"username": {"nobody"}, "password": {"password123"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["detail"])
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "house", models.RoleDoctor)

	w := env.doForm(t, "/api/auth/token", url.Values{"username": {"house"}, "password": {"password123"}})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, models.RoleDoctor, body["role"])

	me := env.doJSON(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "house", decodeBody(t, me)["username"])
}

func TestInactiveUserCannotLogin(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.createUser(t, "retired", models.RoleDoctor)
	require.NoError(t, env.db.Model(&user).Update("is_active", false).Error)

	w := env.doForm(t, "/api/auth/token", url.Values{"username": {"retired"}, "password": {"password123"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// An already-issued token stops working too.
	me := env.doJSON(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	payload := gin.H{
		"username":  "newdoc",
		"email":     "newdoc@clinic.test",
		"password":  "password123",
		"full_name": "Dr. New",
	}
	w := env.doJSON(t, http.MethodPost, "/api/auth/register", "", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	again := env.doJSON(t, http.MethodPost, "/api/auth/register", "", payload)
	assert.Equal(t, http.StatusConflict, again.Code)

	var user models.User
	require.NoError(t, env.db.Where("username = ?", "newdoc").First(&user).Error)
	assert.Equal(t, models.RoleDoctor, user.Role)
}

func TestUnauthenticatedRequest(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodGet, "/api/images/", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["detail"])
}

func TestUploadTooLargeRejectedBeforeStorage(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "house", models.RoleDoctor)

	oversized := make([]byte, 17*1024*1024)
	w := env.doUpload(t, token, "huge.png", oversized, "X-ray")
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var count int64
	env.db.Model(&models.Image{}).Count(&count)
	assert.Zero(t, count)

	// Nothing may have been written to the store either.
	files := 0
	filepath.Walk(env.storeDir, func(_ string, info os.FileInfo, _ error) error {
		if info != nil && !info.IsDir() {
			files++
		}
		return nil
	})
	assert.Zero(t, files)
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "house", models.RoleDoctor)

	w := env.doUpload(t, token, "notes.txt", []byte("definitely not an image"), "X-ray")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAndFetchImage(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "house", models.RoleDoctor)

	data := pngBytes(t)
	w := env.doUpload(t, token, "scan.png", data, "X-ray")
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["width"])
	assert.Equal(t, float64(1), body["height"])
	assert.Equal(t, "image/png", body["mime_type"])
	assert.Equal(t, "X-ray", body["image_type"])
	id := int(body["id"].(float64))

	got := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/images/%d", id), token, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "scan.png", decodeBody(t, got)["original_filename"])

	file := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/images/%d/file", id), token, nil)
	require.Equal(t, http.StatusOK, file.Code)
	assert.Equal(t, data, file.Body.Bytes())
}

func TestDeleteImageAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorToken := env.createUser(t, "house", models.RoleDoctor)
	_, adminToken := env.createUser(t, "root", models.RoleAdmin)
	img := env.seedImage(t, doctor.ID)

	w := env.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/images/%d", img.ID), doctorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/images/%d", img.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.store.Open(context.Background(), img.ObjectPath)
	assert.Error(t, err)
}

func TestCreatePredictionMissingImage(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "house", models.RoleDoctor)

	w := env.doJSON(t, http.MethodPost, "/api/predictions/", token, gin.H{"image_id": 999, "model_name": "chest-xray"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePredictionUnknownModel(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)

	w := env.doJSON(t, http.MethodPost, "/api/predictions/", token, gin.H{"image_id": img.ID, "model_name": "no-such-model"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePredictionInferenceFailureLeavesNoRow(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)

	w := env.doJSON(t, http.MethodPost, "/api/predictions/", token, gin.H{"image_id": img.ID, "model_name": "broken"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var count int64
	env.db.Model(&models.Prediction{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreatePrediction(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)

	w := env.doJSON(t, http.MethodPost, "/api/predictions/", token, gin.H{"image_id": img.ID, "model_name": "chest-xray"})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, models.StatusCompleted, body["status"])
	assert.Equal(t, float64(img.ID), body["image_id"])
	assert.InDelta(t, 0.8, body["confidence_score"].(float64), 1e-9)

	var prediction models.Prediction
	require.NoError(t, env.db.First(&prediction, "image_id = ?", img.ID).Error)
	assert.InDelta(t, 0.8, prediction.Predictions["Pneumonia"], 1e-9)

	list := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/predictions/?image_id=%d", img.ID), token, nil)
	require.Equal(t, http.StatusOK, list.Code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &rows))
	require.Len(t, rows, 1)

	detail := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/predictions/%d", prediction.ID), token, nil)
	assert.Equal(t, http.StatusOK, detail.Code)
}

func TestCreatePredictionRequiresDoctorRole(t *testing.T) {
	env := newTestEnv(t)
	doctor, _ := env.createUser(t, "house", models.RoleDoctor)
	_, reviewerToken := env.createUser(t, "wilson", models.RoleReviewer)
	img := env.seedImage(t, doctor.ID)

	w := env.doJSON(t, http.MethodPost, "/api/predictions/", reviewerToken, gin.H{"image_id": img.ID, "model_name": "chest-xray"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGenerateHeatmaps(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)

	model := &config.Model{
		Name:          "chest-xray",
		Endpoint:      env.modelSrv.URL + "/models/chest-xray",
		Labels:        []string{"Normal", "Pneumonia"},
		ConfThreshold: 0.5,
		Explanation:   "grad-cam",
	}
	generateHeatmaps(env.db, env.store, inference.NewClient(zap.NewNop()), env.cfg, zap.NewNop(),
		prediction, img, model, pngBytes(t))

	// Only Pneumonia (0.8) clears the 0.5 threshold.
	var heatmaps []models.Heatmap
	require.NoError(t, env.db.Where("prediction_id = ?", prediction.ID).Find(&heatmaps).Error)
	require.Len(t, heatmaps, 1)
	assert.Equal(t, "Pneumonia", heatmaps[0].Label)
	assert.Equal(t, "grad-cam", heatmaps[0].Method)

	list := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/predictions/%d/heatmaps", prediction.ID), token, nil)
	require.Equal(t, http.StatusOK, list.Code)

	file := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/heatmaps/%d/file", heatmaps[0].ID), token, nil)
	require.Equal(t, http.StatusOK, file.Code)
	assert.Equal(t, "fake-heatmap-png", file.Body.String())

	detail := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/predictions/%d", prediction.ID), token, nil)
	require.Equal(t, http.StatusOK, detail.Code)
	paths := decodeBody(t, detail)["heatmap_paths"].(map[string]interface{})
	assert.Contains(t, paths, "Pneumonia")
}

func TestFeedbackUpsert(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)
	path := fmt.Sprintf("/api/feedback/%d", prediction.ID)

	w := env.doJSON(t, http.MethodPost, path, token, gin.H{"rating": 4, "comment": "plausible"})
	require.Equal(t, http.StatusCreated, w.Code)

	var refreshed models.Prediction
	require.NoError(t, env.db.First(&refreshed, prediction.ID).Error)
	assert.Equal(t, models.StatusReviewed, refreshed.Status)

	// Second submission updates in place.
	w = env.doJSON(t, http.MethodPost, path, token, gin.H{"rating": 2, "override_label": "Normal"})
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	env.db.Model(&models.Feedback{}).Where("prediction_id = ?", prediction.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	var feedback models.Feedback
	require.NoError(t, env.db.Where("prediction_id = ?", prediction.ID).First(&feedback).Error)
	assert.Equal(t, 2, feedback.Rating)
	assert.Equal(t, "Normal", feedback.OverrideLabel)

	got := env.doJSON(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusOK, got.Code)

	// Deleting reverts the prediction to completed.
	del := env.doJSON(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, del.Code)
	require.NoError(t, env.db.First(&refreshed, prediction.ID).Error)
	assert.Equal(t, models.StatusCompleted, refreshed.Status)

	missing := env.doJSON(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestFeedbackByReviewer(t *testing.T) {
	env := newTestEnv(t)
	doctor, _ := env.createUser(t, "house", models.RoleDoctor)
	_, reviewerToken := env.createUser(t, "wilson", models.RoleReviewer)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)

	w := env.doJSON(t, http.MethodPost, fmt.Sprintf("/api/feedback/%d", prediction.ID), reviewerToken, gin.H{"rating": 5})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestFeedbackValidation(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)

	w := env.doJSON(t, http.MethodPost, fmt.Sprintf("/api/feedback/%d", prediction.ID), token, gin.H{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/feedback/999", token, gin.H{"rating": 3})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedbackDeleteOnlyAuthorOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorToken := env.createUser(t, "house", models.RoleDoctor)
	_, otherToken := env.createUser(t, "foreman", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)
	path := fmt.Sprintf("/api/feedback/%d", prediction.ID)

	require.Equal(t, http.StatusCreated, env.doJSON(t, http.MethodPost, path, doctorToken, gin.H{"rating": 4}).Code)

	w := env.doJSON(t, http.MethodDelete, path, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUsersAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	_, doctorToken := env.createUser(t, "house", models.RoleDoctor)
	_, adminToken := env.createUser(t, "root", models.RoleAdmin)

	w := env.doJSON(t, http.MethodGet, "/api/users/", doctorToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["detail"])

	w = env.doJSON(t, http.MethodGet, "/api/users/", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/users/", adminToken, gin.H{
		"username":  "chase",
		"email":     "chase@clinic.test",
		"password":  "password123",
		"full_name": "Dr. Chase",
		"role":      models.RoleReviewer,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RoleReviewer, decodeBody(t, w)["role"])
}

func TestUserSelfAccess(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorToken := env.createUser(t, "house", models.RoleDoctor)
	other, _ := env.createUser(t, "foreman", models.RoleDoctor)
	_, adminToken := env.createUser(t, "root", models.RoleAdmin)

	// Read: self ok, peer forbidden.
	w := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/users/%d", doctor.ID), doctorToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/users/%d", other.ID), doctorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Self profile update ok, role escalation forbidden.
	w = env.doJSON(t, http.MethodPut, fmt.Sprintf("/api/users/%d", doctor.ID), doctorToken, gin.H{"full_name": "Dr. Gregory House"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.doJSON(t, http.MethodPut, fmt.Sprintf("/api/users/%d", doctor.ID), doctorToken, gin.H{"role": models.RoleAdmin})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin can change roles.
	w = env.doJSON(t, http.MethodPut, fmt.Sprintf("/api/users/%d", doctor.ID), adminToken, gin.H{"role": models.RoleReviewer})
	require.Equal(t, http.StatusOK, w.Code)

	var refreshed models.User
	require.NoError(t, env.db.First(&refreshed, doctor.ID).Error)
	assert.Equal(t, models.RoleReviewer, refreshed.Role)
	assert.Equal(t, "Dr. Gregory House", refreshed.FullName)
}

func TestUserDelete(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorToken := env.createUser(t, "house", models.RoleDoctor)
	admin, adminToken := env.createUser(t, "root", models.RoleAdmin)

	w := env.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", admin.ID), adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", doctor.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Soft-deleted user's token no longer authenticates.
	me := env.doJSON(t, http.MethodGet, "/api/auth/me", doctorToken, nil)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestCreateReportTxt(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)

	w := env.doJSON(t, http.MethodPost, "/api/reports/", token, gin.H{
		"prediction_id":    prediction.ID,
		"report_type":      "txt",
		"additional_notes": "Recommend follow-up CT.",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "txt", body["report_type"])
	reportID := int(body["id"].(float64))

	download := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/reports/%d/download", reportID), token, nil)
	require.Equal(t, http.StatusOK, download.Code)
	text := download.Body.String()
	assert.Contains(t, text, "Pneumonia: 80.00%")
	assert.Contains(t, text, "Recommend follow-up CT.")

	byPrediction := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/reports/by-prediction/%d", prediction.ID), token, nil)
	require.Equal(t, http.StatusOK, byPrediction.Code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(byPrediction.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)
}

func TestCreateReportPdf(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)

	w := env.doJSON(t, http.MethodPost, "/api/reports/", token, gin.H{"prediction_id": prediction.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pdf", decodeBody(t, w)["report_type"])

	reportID := int(decodeBody(t, w)["id"].(float64))
	download := env.doJSON(t, http.MethodGet, fmt.Sprintf("/api/reports/%d/download", reportID), token, nil)
	require.Equal(t, http.StatusOK, download.Code)
	assert.True(t, strings.HasPrefix(download.Body.String(), "%PDF"))
}

func TestCreateReportValidation(t *testing.T) {
	env := newTestEnv(t)
	doctor, token := env.createUser(t, "house", models.RoleDoctor)
	img := env.seedImage(t, doctor.ID)
	prediction := env.seedPrediction(t, img.ID, doctor.ID)

	w := env.doJSON(t, http.MethodPost, "/api/reports/", token, gin.H{"prediction_id": prediction.ID, "report_type": "docx"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/reports/", token, gin.H{"prediction_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
