package services

import (
	"errors"
	"testing"

	"edumarket_echo/internal/models"
)

func TestCartAddFreezesPrice(t *testing.T) {
	db := newTestDB(t)
	carts := NewCartService(db)
	user := seedUser(t, db, "cart@example.com")
	course := seedCourse(t, db, "Go Fundamentals", 150000)

	item, err := carts.Add(user.ID, course.ID)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.PriceAtAdd != 150000 {
		t.Errorf("frozen price = %v; want 150000", item.PriceAtAdd)
	}

	// A later catalog price change must not move the cart line
	db.Model(&models.Course{}).Where("id = ?", course.ID).Update("price", 200000)

	items, err := carts.Items(user.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1 || items[0].PriceAtAdd != 150000 {
		t.Errorf("cart line price = %v; want frozen 150000", items[0].PriceAtAdd)
	}

	total, err := carts.Total(user.ID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 150000 {
		t.Errorf("total = %v; want 150000", total)
	}
}

func TestCartAddRejections(t *testing.T) {
	db := newTestDB(t)
	carts := NewCartService(db)
	user := seedUser(t, db, "rejections@example.com")

	paid := seedCourse(t, db, "Paid Course", 99000)
	free := seedCourse(t, db, "Free Course", 0)
	inactive := seedCourse(t, db, "Retired Course", 50000)
	db.Model(&models.Course{}).Where("id = ?", inactive.ID).Update("active", false)

	owned := seedCourse(t, db, "Owned Course", 75000)
	if err := db.Create(&models.Enrollment{UserID: user.ID, CourseID: owned.ID}).Error; err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}

	if _, err := carts.Add(user.ID, paid.ID); err != nil {
		t.Fatalf("first add: %v", err)
	}

	tests := []struct {
		name     string
		courseID uint
		want     error
	}{
		{"free course", free.ID, ErrNotPurchasable},
		{"inactive course", inactive.ID, ErrCourseNotFound},
		{"unknown course", 9999, ErrCourseNotFound},
		{"already enrolled", owned.ID, ErrAlreadyEnrolled},
		{"duplicate add", paid.ID, ErrAlreadyInCart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := carts.Add(user.ID, tt.courseID)
			if !errors.Is(err, tt.want) {
				t.Errorf("Add = %v; want %v", err, tt.want)
			}
		})
	}
}

func TestCartRemoveAllowsReAdd(t *testing.T) {
	db := newTestDB(t)
	carts := NewCartService(db)
	user := seedUser(t, db, "readd@example.com")
	course := seedCourse(t, db, "Go Concurrency", 120000)

	if _, err := carts.Add(user.ID, course.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := carts.Remove(user.ID, course.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := carts.Add(user.ID, course.ID); err != nil {
		t.Errorf("re-add after remove: %v", err)
	}
}

func TestCartClear(t *testing.T) {
	db := newTestDB(t)
	carts := NewCartService(db)
	user := seedUser(t, db, "clear@example.com")

	for _, title := range []string{"A", "B", "C"} {
		course := seedCourse(t, db, title, 10000)
		if _, err := carts.Add(user.ID, course.ID); err != nil {
			t.Fatalf("add %s: %v", title, err)
		}
	}

	if err := carts.Clear(user.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	count, err := carts.Count(user.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count after clear = %d; want 0", count)
	}
}
