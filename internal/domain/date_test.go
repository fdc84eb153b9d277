package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Date
		wantErr bool
	}{
		{name: "valid", input: "2024-03-01", want: NewDate(2024, time.March, 1)},
		{name: "leap day", input: "2024-02-29", want: NewDate(2024, time.February, 29)},
		{name: "invalid format", input: "01/03/2024", wantErr: true},
		{name: "invalid day", input: "2023-02-29", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDate_AddDays(t *testing.T) {
	tests := []struct {
		name string
		date Date
		days int
		want Date
	}{
		{name: "within month", date: NewDate(2024, time.January, 10), days: 5, want: NewDate(2024, time.January, 15)},
		{name: "month boundary", date: NewDate(2024, time.January, 31), days: 1, want: NewDate(2024, time.February, 1)},
		{name: "year boundary", date: NewDate(2023, time.December, 31), days: 1, want: NewDate(2024, time.January, 1)},
		{name: "leap february", date: NewDate(2024, time.February, 28), days: 1, want: NewDate(2024, time.February, 29)},
		{name: "negative", date: NewDate(2024, time.March, 1), days: -1, want: NewDate(2024, time.February, 29)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.date.AddDays(tt.days))
		})
	}
}

func TestDate_Comparisons(t *testing.T) {
	a := NewDate(2024, time.January, 1)
	b := NewDate(2024, time.January, 2)

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.After(a))
	assert.False(t, a.After(a))
	assert.Equal(t, 1, a.DaysUntil(b))
	assert.Equal(t, -1, b.DaysUntil(a))
	assert.True(t, Date{}.IsZero())
	assert.False(t, a.IsZero())
}

func TestDatesBetween(t *testing.T) {
	start := NewDate(2024, time.January, 30)
	end := NewDate(2024, time.February, 2)

	got := DatesBetween(start, end)
	require.Len(t, got, 4)
	assert.Equal(t, start, got[0])
	assert.Equal(t, end, got[3])

	assert.Equal(t, []Date{start}, DatesBetween(start, start))
	assert.Nil(t, DatesBetween(end, start))
}

func TestDate_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Date Date `json:"date"`
	}

	encoded, err := json.Marshal(payload{Date: NewDate(2024, time.March, 1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-01"}`, string(encoded))

	var decoded payload
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, NewDate(2024, time.March, 1), decoded.Date)

	assert.Error(t, json.Unmarshal([]byte(`{"date":"bogus"}`), &decoded))
}
