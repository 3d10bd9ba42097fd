package sellers

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rawUser(t *testing.T, doc bson.M) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bson.Raw(b)
}

func TestDecodeUser_LooselyTypedPreferences(t *testing.T) {
	oid := primitive.NewObjectID()
	raw := rawUser(t, bson.M{
		"_id":   oid,
		"name":  "Ada",
		"email": "ada@example.com",
		"role":  "seller",
		"preferences": bson.M{
			"workingHours": bson.M{"start": "09:00", "end": "17:00", "days": bson.A{int32(1), int64(2), 3.0, "4", int32(5)}},
			"bufferTime":   "15",
		},
	})

	doc, err := decodeUser(raw)
	if err != nil {
		t.Fatalf("decodeUser: %v", err)
	}
	u := doc.user()
	if u.ID != oid.Hex() || !u.IsSeller() || u.Preferences == nil {
		t.Fatalf("user = %+v", u)
	}
	p, err := u.Preferences.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p.Buffer != 15*time.Minute || !p.WorkingDays.Has(time.Thursday) || p.WorkingDays.Has(time.Saturday) {
		t.Fatalf("policy = %+v", p)
	}
	if p.Location != nil {
		t.Fatalf("expected no location for legacy preferences, got %v", p.Location)
	}
}

func TestDecodeUser_Malformed(t *testing.T) {
	raw := rawUser(t, bson.M{
		"_id":         primitive.NewObjectID(),
		"role":        "seller",
		"preferences": bson.M{"workingHours": bson.M{"start": "09:00", "end": "17:00"}, "bufferTime": 7.5},
	})
	if _, err := decodeUser(raw); !errors.Is(err, availability.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPreferencesDocumentRoundTrip(t *testing.T) {
	prefs := Preferences{
		WorkingHours: WorkingHours{Start: "08:30", End: "16:00", Days: []int{1, 3}},
		BufferTime:   10,
		Timezone:     "Europe/Paris",
	}
	b, err := bson.Marshal(preferencesDocumentFrom(prefs))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := bson.Raw(b).Lookup("bufferTime").Type; got != bson.TypeInt32 {
		t.Fatalf("bufferTime stored as %s", got)
	}
	var back preferencesDocument
	if err := bson.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := back.preferences(); got.Timezone != "Europe/Paris" || len(got.WorkingHours.Days) != 2 || got.BufferTime != 10 {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestParseID(t *testing.T) {
	if _, err := ParseID("not-an-object-id"); !errors.Is(err, availability.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := ParseID(" 665f1c2ab8d4e3a1f0c9d812 "); err != nil {
		t.Fatalf("ParseID: %v", err)
	}
}
