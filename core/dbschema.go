package core

import (
	"time"
)

// Server is one configured federated instance.
// The account relationship is owned by the server row: AccountID is the
// back-reference, and removing a server cascades to its timelines.
type Server struct {
	ID              uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Domain          string    `json:"domain" gorm:"type:text;not null"`
	BaseURL         string    `json:"baseURL" gorm:"type:text;not null"`
	SNS             SNS       `json:"sns" gorm:"type:text;not null"`
	AccountID       *uint     `json:"accountID" gorm:"default:null"`
	NoStreaming     bool      `json:"noStreaming" gorm:"default:false"`
	CannotSubscribe bool      `json:"cannotSubscribe" gorm:"default:false"`
	CDate           time.Time `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// Account is one authenticated identity on a server
type Account struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Username    string    `json:"username" gorm:"type:text;not null"`
	AccessToken string    `json:"-" gorm:"type:text"`
	Color       string    `json:"color" gorm:"type:text"`
	Usual       bool      `json:"usual" gorm:"default:false"`
	CDate       time.Time `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// Timeline is one configured column. ID is dense (1..N) and recomputed
// after every structural edit in left-to-right, top-to-bottom order, so
// consumers must not assume id stability across edits. Wrapper and
// Position encode the nested column/stack placement.
type Timeline struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	Kind     TimelineKind `json:"kind" gorm:"type:text;not null"`
	Name     string       `json:"name" gorm:"type:text"`
	ServerID uint         `json:"serverID" gorm:"not null"`
	ListID   string       `json:"listID" gorm:"type:text"`
	Tag      string       `json:"tag" gorm:"type:text"`
	Width    int          `json:"width" gorm:"default:320"`
	Height   int          `json:"height" gorm:"default:0"`
	Color    string       `json:"color" gorm:"type:text"`
	Stacked  bool         `json:"stacked" gorm:"default:false"`
	Wrapper  int          `json:"-" gorm:"not null"`
	Position int          `json:"-" gorm:"not null"`
}

// Qualifier returns the list/tag qualifier for channel resolution
func (t Timeline) Qualifier() string {
	if t.Kind == KindList {
		return t.ListID
	}
	if t.Kind == KindTag {
		return t.Tag
	}
	return ""
}

// Setting is one persisted key-value settings entry
type Setting struct {
	Key   string `json:"key" gorm:"primaryKey;type:text"`
	Value string `json:"value" gorm:"type:text"`
}
