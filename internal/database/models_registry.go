package database

import "nokoroa/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters for AutoMigrate: referenced tables come first.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Location{},
		&models.Tag{},
		&models.Post{},
		&models.PostTag{},
		&models.Bookmark{},
	}
}
