package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var ErrDuplicateLabel = errors.New("label name already exists")

// Label is a client's catalog; royalty rows are attributed to it by name.
type Label struct {
	ID        int       `gorm:"primary_key" json:"id"`
	ClientId  int       `gorm:"index" json:"client_id"`
	Name      string    `gorm:"type:varchar(255) COLLATE utf8mb4_bin;uniqueIndex;not null" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLabel struct {
	ClientId int    `json:"client_id"`
	Name     string `json:"name" validate:"required,max=255"`
}

// FindLabelByName matches the name exactly, letter case included.
func FindLabelByName(ctx context.Context, db *gorm.DB, name string) (*Label, error) {
	var label Label
	err := db.WithContext(ctx).Where("name = ?", name).Take(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	// the binary collation still pads trailing spaces
	if label.Name != name {
		return nil, utils.ErrorRecordNotFound
	}
	return &label, nil
}

func CreateLabel(ctx context.Context, input *NewLabel) (*Label, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	label := Label{
		ClientId: input.ClientId,
		Name:     strings.TrimSpace(input.Name),
	}
	if err := db.WithContext(ctx).Create(&label).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateLabel
		}
		return nil, err
	}
	return &label, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
