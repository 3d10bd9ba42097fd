package sellers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleSeller = "seller"
	RoleBuyer  = "buyer"
)

// User is a directory entry. Image and Preferences are optional.
type User struct {
	ID          string       `json:"_id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Image       string       `json:"image,omitempty"`
	Role        string       `json:"role,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

func (u User) IsSeller() bool { return u.Role == RoleSeller }

// Preferences is the editable availability configuration of a seller.
type Preferences struct {
	WorkingHours WorkingHours `json:"workingHours"`
	BufferTime   int          `json:"bufferTime"`
	Timezone     string       `json:"timezone,omitempty"`
}

type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  []int  `json:"days"`
}

// Policy validates the preferences into a working-hours policy.
func (p Preferences) Policy() (availability.WorkingHoursPolicy, error) {
	return availability.NewWorkingHoursPolicy(availability.PolicyInput{
		Start:         p.WorkingHours.Start,
		End:           p.WorkingHours.End,
		Days:          p.WorkingHours.Days,
		BufferMinutes: p.BufferTime,
		Timezone:      p.Timezone,
	})
}

type userDocument struct {
	ID          primitive.ObjectID   `bson:"_id"`
	Name        string               `bson:"name"`
	Email       string               `bson:"email"`
	Image       string               `bson:"image,omitempty"`
	Role        string               `bson:"role,omitempty"`
	Preferences *preferencesDocument `bson:"preferences,omitempty"`
}

type preferencesDocument struct {
	WorkingHours workingHoursDocument `bson:"workingHours"`
	BufferTime   looseInt             `bson:"bufferTime"`
	Timezone     string               `bson:"timezone,omitempty"`
}

type workingHoursDocument struct {
	Start string     `bson:"start"`
	End   string     `bson:"end"`
	Days  []looseInt `bson:"days"`
}

func (d userDocument) user() User {
	u := User{
		ID:    d.ID.Hex(),
		Name:  d.Name,
		Email: d.Email,
		Image: d.Image,
		Role:  d.Role,
	}
	if d.Preferences != nil {
		p := d.Preferences.preferences()
		u.Preferences = &p
	}
	return u
}

func (d preferencesDocument) preferences() Preferences {
	days := make([]int, 0, len(d.WorkingHours.Days))
	for _, day := range d.WorkingHours.Days {
		days = append(days, int(day))
	}
	return Preferences{
		WorkingHours: WorkingHours{Start: d.WorkingHours.Start, End: d.WorkingHours.End, Days: days},
		BufferTime:   int(d.BufferTime),
		Timezone:     d.Timezone,
	}
}

func preferencesDocumentFrom(p Preferences) preferencesDocument {
	days := make([]looseInt, 0, len(p.WorkingHours.Days))
	for _, day := range p.WorkingHours.Days {
		days = append(days, looseInt(day))
	}
	return preferencesDocument{
		WorkingHours: workingHoursDocument{Start: p.WorkingHours.Start, End: p.WorkingHours.End, Days: days},
		BufferTime:   looseInt(p.BufferTime),
		Timezone:     p.Timezone,
	}
}

// looseInt accepts the numeric encodings web clients have stored over time:
// int32, int64, integral doubles and numeric strings.
type looseInt int

func (n *looseInt) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Int32:
		*n = looseInt(rv.Int32())
	case bsontype.Int64:
		*n = looseInt(rv.Int64())
	case bsontype.Double:
		f := rv.Double()
		if f != math.Trunc(f) {
			return fmt.Errorf("non-integral value %v", f)
		}
		*n = looseInt(f)
	case bsontype.String:
		v, err := strconv.Atoi(strings.TrimSpace(rv.StringValue()))
		if err != nil {
			return fmt.Errorf("non-numeric value %q", rv.StringValue())
		}
		*n = looseInt(v)
	case bsontype.Null, bsontype.Undefined:
		*n = 0
	default:
		return fmt.Errorf("cannot decode %s as integer", t)
	}
	return nil
}

func (n looseInt) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(int32(n))
}
