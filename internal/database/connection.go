package database

import (
	"errors"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velimir/roomcast/internal/models"
)

// Database is the durable RoomStore, a drop-in alternative to the in-memory
// one with identical external behavior. Only final messages are inserted;
// pending scheduled placeholders live in the scheduler until they fire.
type Database struct {
	db *gorm.DB
}

// Connect opens the postgres database named by DATABASE_URL and migrates
// the schema.
func (d *Database) Connect() error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}
	return d.open(postgres.Open(dsn))
}

// Open attaches an explicit dialector. Tests use this with sqlite.
func (d *Database) Open(dialector gorm.Dialector) error {
	return d.open(dialector)
}

func (d *Database) open(dialector gorm.Dialector) error {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&models.Message{}, &models.Channel{}); err != nil {
		return err
	}

	d.db = db
	return nil
}
