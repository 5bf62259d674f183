package database

import (
	"errors"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/velimir/roomcast/internal/models"
)

// EnsureRoom registers the default sub-channel for the room. Idempotent.
func (d *Database) EnsureRoom(roomID string) error {
	return d.registerChannel(roomID, models.DefaultSubChannel)
}

// AppendDelivered inserts a final message row. Rows are never updated or
// deleted afterwards.
func (d *Database) AppendDelivered(roomID, subChannel string, msg *models.Message) error {
	if err := d.registerChannel(roomID, subChannel); err != nil {
		return err
	}
	return d.db.Create(msg).Error
}

// History returns the delivered log for one sub-channel ordered by
// delivered_at ascending.
func (d *Database) History(roomID, subChannel string) ([]models.Message, error) {
	var messages []models.Message
	err := d.db.
		Where("room_id = ? AND sub_channel = ? AND state <> ?", roomID, subChannel, models.StatePending).
		Order("delivered_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListSubChannels returns the known sub-channel names, default first and
// the rest in name order.
func (d *Database) ListSubChannels(roomID string) ([]string, error) {
	if err := d.registerChannel(roomID, models.DefaultSubChannel); err != nil {
		return nil, err
	}

	var channels []models.Channel
	if err := d.db.Where("room_id = ?", roomID).Find(&channels).Error; err != nil {
		return nil, err
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.Name == models.DefaultSubChannel {
			continue
		}
		names = append(names, ch.Name)
	}
	sort.Strings(names)
	return append([]string{models.DefaultSubChannel}, names...), nil
}

// CreateSubChannel registers a name and reports whether it was new.
func (d *Database) CreateSubChannel(roomID, name string) (bool, error) {
	if err := d.registerChannel(roomID, models.DefaultSubChannel); err != nil {
		return false, err
	}

	var existing models.Channel
	err := d.db.Where("room_id = ? AND name = ?", roomID, name).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := d.registerChannel(roomID, name); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Database) registerChannel(roomID, name string) error {
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Channel{RoomID: roomID, Name: name}).Error
}
