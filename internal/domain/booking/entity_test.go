package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBooking(t *testing.T) {
	now := at(8, 0)
	w := TimeWindow{Start: at(10, 0), End: at(11, 30)}

	b := NewBooking("car-1", "user-1", w, "  顧客訪問  ", now)

	require.NoError(t, b.Validate())
	assert.True(t, b.Active)
	assert.False(t, b.ReminderSent)
	assert.Equal(t, 2, b.DurationHours)
	assert.Equal(t, "顧客訪問", b.Reason)
	assert.Equal(t, now, b.CreatedAt)
	assert.Equal(t, StatusActive, b.Status())
	assert.Nil(t, b.DeactivatedAt)
}

func TestBooking_Validate(t *testing.T) {
	w := TimeWindow{Start: at(10, 0), End: at(11, 0)}
	tests := []struct {
		name    string
		carID   string
		userID  string
		reason  string
		window  TimeWindow
		wantErr error
	}{
		{"正常", "car-1", "user-1", "出張", w, nil},
		{"車両ID未指定", "", "user-1", "出張", w, ErrCarIDRequired},
		{"ユーザーID未指定", "car-1", " ", "出張", w, ErrUserIDRequired},
		{"利用目的未指定", "car-1", "user-1", "", w, ErrReasonRequired},
		{"期間不正", "car-1", "user-1", "出張", TimeWindow{Start: at(11, 0), End: at(10, 0)}, ErrInvalidWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBooking(tt.carID, tt.userID, tt.window, tt.reason, at(8, 0))
			err := b.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBooking_Deactivate(t *testing.T) {
	b := NewBooking("car-1", "user-1", TimeWindow{Start: at(10, 0), End: at(11, 0)}, "出張", at(8, 0))
	window := b.Window()

	require.NoError(t, b.Deactivate(at(9, 0)))
	assert.False(t, b.Active)
	require.NotNil(t, b.DeactivatedAt)
	assert.Equal(t, at(9, 0), *b.DeactivatedAt)

	// 二度目は拒否され、状態も期間も変わらない
	err := b.Deactivate(at(9, 30))
	assert.ErrorIs(t, err, ErrAlreadyInactive)
	assert.False(t, b.Active)
	assert.Equal(t, at(9, 0), *b.DeactivatedAt)
	assert.Equal(t, window, b.Window())
}

func TestBooking_CanBeChangedBy(t *testing.T) {
	b := NewBooking("car-1", "owner", TimeWindow{Start: at(10, 0), End: at(11, 0)}, "出張", at(8, 0))
	tests := []struct {
		name    string
		userID  string
		isAdmin bool
		want    bool
	}{
		{"所有者", "owner", false, true},
		{"管理者", "someone", true, true},
		{"第三者", "someone", false, false},
		{"匿名", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.CanBeChangedBy(tt.userID, tt.isAdmin))
		})
	}
}

func TestBooking_MarkReminded(t *testing.T) {
	b := NewBooking("car-1", "user-1", TimeWindow{Start: at(10, 0), End: at(11, 0)}, "出張", at(8, 0))
	require.NoError(t, b.MarkReminded(at(9, 0)))
	assert.True(t, b.ReminderSent)
	assert.ErrorIs(t, b.MarkReminded(at(9, 5)), ErrAlreadyReminded)
}

func TestBooking_OccupiesAt(t *testing.T) {
	b := NewBooking("car-1", "user-1", TimeWindow{Start: at(10, 0), End: at(11, 0)}, "出張", at(8, 0))
	assert.True(t, b.OccupiesAt(at(10, 30)))
	assert.False(t, b.OccupiesAt(at(11, 0)))
	require.NoError(t, b.Deactivate(at(10, 40)))
	assert.False(t, b.OccupiesAt(at(10, 45)))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(ErrConflict))
	assert.True(t, IsRejection(ErrTimeout))
	assert.False(t, IsRejection(assert.AnError))
	assert.False(t, IsRejection(nil))
}
