package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipalKey(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		want      string
		guest     bool
	}{
		{"user", UserPrincipal(42), "user:42", false},
		{"guest lowercased", GuestPrincipal("  Buyer@Example.COM "), "email:buyer@example.com", true},
		{"user wins over email", Principal{UserID: 5, Email: "x@example.com"}, "user:5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.principal.Key())
			assert.Equal(t, tt.guest, tt.principal.IsGuest())
			assert.True(t, tt.principal.Valid())
		})
	}

	assert.False(t, Principal{}.Valid())
	assert.False(t, GuestPrincipal("   ").Valid())
}

func TestCoursePriceFor(t *testing.T) {
	course := Course{PriceCents: 4900, PremiumPriceCents: 9900}

	price, ok := course.PriceFor(TierStandard)
	assert.True(t, ok)
	assert.Equal(t, int64(4900), price)

	price, ok = course.PriceFor("")
	assert.True(t, ok)
	assert.Equal(t, int64(4900), price)

	price, ok = course.PriceFor(TierPremium)
	assert.True(t, ok)
	assert.Equal(t, int64(9900), price)

	_, ok = course.PriceFor("platinum")
	assert.False(t, ok)

	noPremium := Course{PriceCents: 4900}
	_, ok = noPremium.PriceFor(TierPremium)
	assert.False(t, ok)
}

func TestCourseLessonsOrder(t *testing.T) {
	course := Course{Chapters: []Chapter{
		{ID: 1, Lessons: []Lesson{{ID: 10}, {ID: 11}}},
		{ID: 2},
		{ID: 3, Lessons: []Lesson{{ID: 30}}},
	}}

	var ids []int64
	for _, l := range course.Lessons() {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []int64{10, 11, 30}, ids)
}

func TestPurchaseAccessAndGuest(t *testing.T) {
	p := Purchase{PrincipalKey: "email:a@example.com", Status: PurchasePending}
	assert.False(t, p.GrantsAccess())
	assert.True(t, p.IsGuest())

	p.Status = PurchaseCompleted
	p.UserID = 9
	assert.True(t, p.GrantsAccess())
	assert.False(t, p.IsGuest())
	assert.Equal(t, TierStandard, p.Tier())
}

func TestVideoChange(t *testing.T) {
	s, ok := SetVideoProgress(12.5).Seconds()
	assert.True(t, ok)
	assert.Equal(t, 12.5, s)

	_, ok = KeepVideoProgress().Seconds()
	assert.False(t, ok)
}
