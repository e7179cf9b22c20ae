// Package dbtest opens throwaway SQLite databases with the full schema and
// seeds the fixtures most service tests need.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
)

// Open returns an isolated in-memory database with every model migrated.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// MustCreateUser inserts an active user.
func MustCreateUser(t *testing.T, conn *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		Email:        fmt.Sprintf("dresseur_%s@example.com", uuid.NewString()[:8]),
		PasswordHash: "hash",
		FirstName:    "Sacha",
		LastName:     "Ketchum",
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// VariantSpec describes one variant to seed.
type VariantSpec struct {
	Name       string
	PriceCents int
	Stock      int
	Inactive   bool
}

// MustCreateProduct inserts an active product with the given variants.
func MustCreateProduct(t *testing.T, conn *gorm.DB, name string, variants ...VariantSpec) *models.Product {
	t.Helper()
	slug := fmt.Sprintf("product-%s", uuid.NewString()[:8])
	product := &models.Product{
		Slug:     slug,
		Name:     name,
		Category: enums.ProductCategoryBooster,
		SetName:  "Écarlate et Violet",
		ImageURL: "/img/" + slug + ".png",
		IsActive: true,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	for i, vs := range variants {
		variant := models.ProductVariant{
			ProductID:  product.ID,
			Name:       vs.Name,
			Language:   "FR",
			SKU:        fmt.Sprintf("%s-%d", slug, i),
			PriceCents: vs.PriceCents,
			Stock:      vs.Stock,
			IsActive:   !vs.Inactive,
		}
		if err := conn.Create(&variant).Error; err != nil {
			t.Fatalf("create variant: %v", err)
		}
		product.Variants = append(product.Variants, variant)
	}
	return product
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
