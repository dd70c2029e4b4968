package services

import (
	"errors"

	"gorm.io/gorm"

	"edumarket_echo/internal/models"
)

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrNotPurchasable  = errors.New("free courses are enrolled directly, not through the cart")
	ErrAlreadyEnrolled = errors.New("user already owns this course")
	ErrAlreadyInCart   = errors.New("course is already in the cart")
)

// CartService manages the per-user pre-checkout selection. The cart is
// cleared only by explicit user action or by a confirmed payment; starting
// a checkout leaves it intact so an abandoned attempt can be retried.
type CartService struct {
	db *gorm.DB
}

// NewCartService creates a new CartService
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// Add puts a paid course in the user's cart, freezing the current catalog
// price on the line.
func (s *CartService) Add(userID, courseID uint) (*models.CartItem, error) {
	var course models.Course
	if err := s.db.Where("id = ? AND active = ?", courseID, true).First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}

	if course.IsFree() {
		return nil, ErrNotPurchasable
	}

	enrolled, err := s.isEnrolled(userID, courseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}

	item := models.CartItem{
		UserID:     userID,
		CourseID:   courseID,
		PriceAtAdd: course.Price,
	}
	if err := s.db.Create(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyInCart
		}
		return nil, err
	}

	item.Course = course
	return &item, nil
}

// Remove deletes one course from the user's cart
func (s *CartService) Remove(userID, courseID uint) error {
	return s.db.
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&models.CartItem{}).Error
}

// Clear empties the user's cart
func (s *CartService) Clear(userID uint) error {
	return s.db.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}

// Items returns the cart lines with their course details, newest first
func (s *CartService) Items(userID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&items).Error
	return items, err
}

// Count returns the number of lines in the user's cart
func (s *CartService) Count(userID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.CartItem{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// Total sums the frozen line prices
func (s *CartService) Total(userID uint) (float64, error) {
	var total float64
	err := s.db.Model(&models.CartItem{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(price_at_add), 0)").
		Scan(&total).Error
	return total, err
}

func (s *CartService) isEnrolled(userID, courseID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return count > 0, err
}
