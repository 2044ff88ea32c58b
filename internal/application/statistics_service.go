package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
)

// CarUsage は車両ごとの利用集計
type CarUsage struct {
	CarID    string `json:"car_id"`
	CarName  string `json:"car_name"`
	Bookings int64  `json:"bookings"`
	Hours    int64  `json:"hours"`
}

// UserUsage はユーザーごとの利用集計
type UserUsage struct {
	UserID   string `json:"user_id"`
	Bookings int64  `json:"bookings"`
	Hours    int64  `json:"hours"`
}

// Statistics は予約履歴全体の集計結果
type Statistics struct {
	Cars               []CarUsage       `json:"cars"`
	Users              []UserUsage      `json:"users"`
	ReasonDistribution map[string]int64 `json:"reason_distribution"`
	MonthlyBookings    map[string]int64 `json:"monthly_bookings"`
	AverageHours       float64          `json:"average_hours"`
	TotalBookings      int64            `json:"total_bookings"`
	SkippedRecords     int64            `json:"skipped_records"`
}

// StatisticsService は予約履歴を集計する
type StatisticsService struct {
	bookings booking.Repository
	cars     car.Repository
	loc      *time.Location
}

// NewStatisticsService は StatisticsService を生成する
// 月の区切りは loc で判定する
func NewStatisticsService(bookings booking.Repository, cars car.Repository, loc *time.Location) *StatisticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &StatisticsService{bookings: bookings, cars: cars, loc: loc}
}

// Compute は全予約(終了・キャンセル済みを含む)を集計する
func (s *StatisticsService) Compute(ctx context.Context) (*Statistics, error) {
	all, err := s.bookings.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("予約履歴の取得に失敗: %w", err)
	}
	cars, err := s.cars.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("車両一覧の取得に失敗: %w", err)
	}

	byID := make(map[string]*car.Car, len(cars))
	for _, c := range cars {
		if c != nil {
			byID[c.ID] = c
		}
	}

	stats := Aggregate(all, byID, s.loc)
	if stats.SkippedRecords > 0 {
		logger.Warn("集計できない予約を除外しました", zap.Int64("skipped", stats.SkippedRecords))
	}
	return stats, nil
}

// Aggregate は予約を集計する
// 車両・ユーザー・利用目的のいずれかが欠けている予約は全項目から除外し、件数のみ数える
func Aggregate(bookings []*booking.Booking, cars map[string]*car.Car, loc *time.Location) *Statistics {
	if loc == nil {
		loc = time.UTC
	}
	stats := &Statistics{
		Cars:               []CarUsage{},
		Users:              []UserUsage{},
		ReasonDistribution: map[string]int64{},
		MonthlyBookings:    map[string]int64{},
	}

	carUsage := map[string]*CarUsage{}
	userUsage := map[string]*UserUsage{}
	var totalHours int64

	for _, b := range bookings {
		if b == nil {
			stats.SkippedRecords++
			continue
		}
		c, ok := cars[b.CarID]
		reason := strings.TrimSpace(b.Reason)
		if b.CarID == "" || !ok || c == nil || strings.TrimSpace(b.UserID) == "" || reason == "" {
			stats.SkippedRecords++
			continue
		}

		hours := int64(b.Window().DurationHours())

		cu, ok := carUsage[c.ID]
		if !ok {
			cu = &CarUsage{CarID: c.ID, CarName: c.Name}
			carUsage[c.ID] = cu
		}
		cu.Bookings++
		cu.Hours += hours

		uu, ok := userUsage[b.UserID]
		if !ok {
			uu = &UserUsage{UserID: b.UserID}
			userUsage[b.UserID] = uu
		}
		uu.Bookings++
		uu.Hours += hours

		stats.ReasonDistribution[reason]++
		stats.MonthlyBookings[b.StartTime.In(loc).Format("2006-01")]++

		stats.TotalBookings++
		totalHours += hours
	}

	if stats.TotalBookings > 0 {
		stats.AverageHours = float64(totalHours) / float64(stats.TotalBookings)
	}

	for _, cu := range carUsage {
		stats.Cars = append(stats.Cars, *cu)
	}
	sort.Slice(stats.Cars, func(i, j int) bool {
		if stats.Cars[i].Bookings != stats.Cars[j].Bookings {
			return stats.Cars[i].Bookings > stats.Cars[j].Bookings
		}
		return stats.Cars[i].CarID < stats.Cars[j].CarID
	})

	for _, uu := range userUsage {
		stats.Users = append(stats.Users, *uu)
	}
	sort.Slice(stats.Users, func(i, j int) bool {
		if stats.Users[i].Bookings != stats.Users[j].Bookings {
			return stats.Users[i].Bookings > stats.Users[j].Bookings
		}
		return stats.Users[i].UserID < stats.Users[j].UserID
	})

	return stats
}
