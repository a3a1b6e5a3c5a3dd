package core

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

type (
	// PessimisticEnv keeps the arguments of an action whose domain effect waits for payment.
	PessimisticEnv struct {
		Id        uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
		PayInId   uuid.UUID      `gorm:"type:char(36);uniqueIndex" json:"payInId"`
		Args      datatypes.JSON `json:"args"`
		Performed bool           `gorm:"not null;default:false" json:"performed"`
		Result    EnvResult      `gorm:"type:text" json:"result"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	EnvResult struct {
		ItemId *uuid.UUID      `json:"itemId,omitempty"`
		Data   json.RawMessage `json:"data,omitempty"`
	}
)

func (PessimisticEnv) TableName() string { return "pessimistic_envs" }

func NewPessimisticEnv(clk clock.Clock, payInId uuid.UUID, args json.RawMessage) *PessimisticEnv {
	return &PessimisticEnv{
		Id:        uuid.Must(uuid.NewV4()),
		PayInId:   payInId,
		Args:      datatypes.JSON(args),
		CreatedAt: clk.Now().Unix(),
		UpdatedAt: clk.Now().Unix(),
	}
}

// Perform records that the deferred action ran and what it produced.
func (e *PessimisticEnv) Perform(clk clock.Clock, result EnvResult) {
	e.Performed = true
	e.Result = result
	e.UpdatedAt = clk.Now().Unix()
}

func (j EnvResult) Value() (driver.Value, error) {
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *EnvResult) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("unsupported env result type %T", value)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, j)
}
