package testutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleModel struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestNewMockDB(t *testing.T) {
	mockDB := NewMockDB(t)
	defer mockDB.Close()

	assert.NotNil(t, mockDB.DB)
	assert.NotNil(t, mockDB.Mock)
	mockDB.ExpectationsWereMet(t)
}

func TestNewSQLiteDB(t *testing.T) {
	db := NewSQLiteDB(t, &sampleModel{})

	require.NoError(t, db.Create(&sampleModel{Name: "a"}).Error)
	var count int64
	require.NoError(t, db.Model(&sampleModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordingPublisher(t *testing.T) {
	p := &RecordingPublisher{}
	require.NoError(t, p.Publish(context.Background(),
		credit.NewCreditsGrantedEvent("u1", 50, credit.SourceBonus, 50),
		credit.NewCreditsDeductedEvent("u1", "storyboard", 15, credit.BucketPersonal, 35)))
	assert.Equal(t, []string{credit.EventTypeCreditsGranted, credit.EventTypeCreditsDeducted}, p.Types())
	assert.Len(t, p.Events(), 2)

	p.Reset()
	p.Err = errors.New("bus down")
	assert.Error(t, p.Publish(context.Background(), credit.NewAdminBypassEvent("admin1", "klingVideo", 80)))
	assert.Len(t, p.Events(), 1)
}

func TestPerformJSON(t *testing.T) {
	engine := gin.New()
	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		require.NoError(t, c.ShouldBindJSON(&body))
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"caller": c.GetHeader("X-Caller"), "body": body}})
	})

	w := PerformJSON(t, engine, http.MethodPost, "/echo", map[string]any{"amount": 5}, map[string]string{"X-Caller": "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	data := DecodeData[struct {
		Caller string         `json:"caller"`
		Body   map[string]any `json:"body"`
	}](t, w)
	assert.Equal(t, "u1", data.Caller)
	assert.Equal(t, float64(5), data.Body["amount"])
}

func TestAssertErrorCode(t *testing.T) {
	w := httptest.NewRecorder()
	w.Code = http.StatusPaymentRequired
	_, _ = w.WriteString(`{"success":false,"error":{"code":"INSUFFICIENT_CREDITS","message":"Not enough credits"}}`)
	AssertErrorCode(t, w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS")
}
