package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"edumarket_echo/internal/models"
	"edumarket_echo/internal/services"
)

// CourseHandler serves the catalog and free enrollments
type CourseHandler struct {
	db    *gorm.DB
	cache *services.RedisCache
}

// NewCourseHandler creates a new CourseHandler. cache may be nil; the
// catalog is then read straight from the database.
func NewCourseHandler(db *gorm.DB, cache *services.RedisCache) *CourseHandler {
	return &CourseHandler{db: db, cache: cache}
}

const catalogCacheKey = "catalog:courses"
const catalogCacheTTL = 5 * time.Minute

// ListCourses returns the active catalog, cached briefly since the
// catalog changes far less often than it is read.
func (h *CourseHandler) ListCourses(c echo.Context) error {
	fetch := func() ([]models.Course, error) {
		var courses []models.Course
		err := h.db.Where("active = ?", true).Order("title asc").Find(&courses).Error
		return courses, err
	}

	var courses []models.Course
	var err error
	if h.cache != nil {
		courses, err = services.GetOrSet(h.cache, c.Request().Context(), catalogCacheKey, catalogCacheTTL, fetch)
	} else {
		courses, err = fetch()
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch courses")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"courses": courses,
	})
}

// GetCourse returns one active course
func (h *CourseHandler) GetCourse(c echo.Context) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var course models.Course
	err = h.db.Where("id = ? AND active = ?", courseID, true).First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Course not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch course")
	}

	return c.JSON(http.StatusOK, course)
}

// EnrollFree grants a free course directly, bypassing cart and checkout.
// Paid courses must go through checkout; enrolling one here is rejected.
func (h *CourseHandler) EnrollFree(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	courseID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var course models.Course
	err = h.db.Where("id = ? AND active = ?", courseID, true).First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Course not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch course")
	}
	if !course.IsFree() {
		return echo.NewHTTPError(http.StatusBadRequest, "Paid courses must be purchased through checkout")
	}

	enrollment := models.Enrollment{UserID: userID, CourseID: courseID}
	err = h.db.Where("user_id = ? AND course_id = ?", userID, courseID).
		FirstOrCreate(&enrollment).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to enroll")
	}

	return c.JSON(http.StatusOK, enrollment)
}

// ListEnrollments returns the caller's enrollments with course details
func (h *CourseHandler) ListEnrollments(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var enrollments []models.Enrollment
	err = h.db.Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&enrollments).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch enrollments")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"enrollments": enrollments,
	})
}
