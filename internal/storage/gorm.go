package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	logx "eventbot/pkg/logx"
)

// GORM row models. Table and column names match migrations.sql so a
// database can be inspected the same way under every driver.

type userRow struct {
	UserID    int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username  string
	FirstName string
	LastName  string
	Remembers *bool
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) user() User {
	return User{ID: r.UserID, Username: r.Username, FirstName: r.FirstName, LastName: r.LastName, Remembers: r.Remembers, CreatedAt: r.CreatedAt}
}

type greetingRow struct {
	ID        int64  `gorm:"primaryKey"`
	UserID    int64  `gorm:"index"`
	Kind      string `gorm:"not null"`
	Content   string `gorm:"not null"`
	Delivered bool   `gorm:"not null;default:false;index"`
	CreatedAt time.Time
}

func (greetingRow) TableName() string { return "greetings" }

type mediaRow struct {
	ID        int64  `gorm:"primaryKey"`
	UserID    int64  `gorm:"index"`
	Kind      string `gorm:"not null"`
	FileRef   string `gorm:"not null"`
	Sent      bool   `gorm:"not null;default:false;index"`
	CreatedAt time.Time
}

func (mediaRow) TableName() string { return "media_items" }

func (r mediaRow) item() MediaItem {
	return MediaItem{ID: r.ID, UserID: r.UserID, Kind: MediaKind(r.Kind), FileRef: r.FileRef, SentToRecipients: r.Sent, CreatedAt: r.CreatedAt}
}

type songRow struct {
	ID        int64  `gorm:"primaryKey"`
	UserID    int64  `gorm:"index"`
	Text      string `gorm:"not null"`
	CreatedAt time.Time
}

func (songRow) TableName() string { return "songs" }

type wishlistRow struct {
	ID        int64  `gorm:"primaryKey"`
	Text      string `gorm:"not null"`
	CreatedBy int64
	CreatedAt time.Time
}

func (wishlistRow) TableName() string { return "wishlist" }

type attendanceRow struct {
	UserID      int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ConfirmedAt time.Time
}

func (attendanceRow) TableName() string { return "attendance" }

type welcomePhotoRow struct {
	ID        int64  `gorm:"primaryKey"`
	Category  string `gorm:"not null;index:idx_welcome_active,priority:1"`
	FileRef   string `gorm:"not null"`
	Caption   string
	Active    bool `gorm:"not null;default:false;index:idx_welcome_active,priority:2"`
	CreatedAt time.Time
}

func (welcomePhotoRow) TableName() string { return "welcome_photos" }

func (r welcomePhotoRow) photo() WelcomePhoto {
	return WelcomePhoto{ID: r.ID, Category: PhotoCategory(r.Category), FileRef: r.FileRef, Caption: r.Caption, Active: r.Active, CreatedAt: r.CreatedAt}
}

// joinedRow is the scan target for "<table> LEFT JOIN users" queries.
type joinedRow struct {
	ID        int64
	UserID    int64
	Kind      string
	Content   string
	Text      string
	Delivered bool
	CreatedAt time.Time
	Username  *string
	FirstName *string
	LastName  *string
	Remembers *bool
}

func (r joinedRow) sender() User {
	u := User{ID: r.UserID, Remembers: r.Remembers}
	if r.Username != nil {
		u.Username = *r.Username
	}
	if r.FirstName != nil {
		u.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		u.LastName = *r.LastName
	}
	return u
}

type gormStore struct {
	db  *gorm.DB
	log logx.Logger
}

func newGormStore(dialector gorm.Dialector, log logx.Logger) (*gormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(log)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&userRow{}, &greetingRow{}, &mediaRow{}, &songRow{},
		&wishlistRow{}, &attendanceRow{}, &welcomePhotoRow{},
	); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return &gormStore{db: db, log: log}, nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- users ----

func (s *gormStore) UpsertUser(ctx context.Context, u User) error {
	row := userRow{UserID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName, CreatedAt: nowIfZero(u.CreatedAt)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name"}),
	}).Create(&row).Error
}

func (s *gormStore) SetRemembers(ctx context.Context, userID int64, remembers bool) error {
	row := userRow{UserID: userID, Remembers: &remembers, CreatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"remembers"}),
	}).Create(&row).Error
}

func (s *gormStore) GetUser(ctx context.Context, userID int64) (User, bool, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return row.user(), true, nil
}

func (s *gormStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&userRow{}).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// ---- greetings ----

func (s *gormStore) AddGreeting(ctx context.Context, g Greeting) (int64, error) {
	row := greetingRow{UserID: g.UserID, Kind: string(g.Kind), Content: g.Content, CreatedAt: nowIfZero(g.CreatedAt)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *gormStore) greetingQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("greetings AS g").
		Select("g.id, g.user_id, g.kind, g.content, g.delivered, g.created_at, u.username, u.first_name, u.last_name, u.remembers").
		Joins("LEFT JOIN users u ON u.user_id = g.user_id")
}

func toGreetings(rows []joinedRow) []SenderGreeting {
	out := make([]SenderGreeting, 0, len(rows))
	for _, r := range rows {
		out = append(out, SenderGreeting{
			Greeting: Greeting{ID: r.ID, UserID: r.UserID, Kind: GreetingKind(r.Kind), Content: r.Content, Delivered: r.Delivered, CreatedAt: r.CreatedAt},
			Sender:   r.sender(),
		})
	}
	return out
}

func (s *gormStore) PendingGreetings(ctx context.Context) ([]SenderGreeting, error) {
	var rows []joinedRow
	err := s.greetingQuery(ctx).Where("g.delivered = ?", false).Order("g.created_at, g.id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toGreetings(rows), nil
}

func (s *gormStore) RecentGreetings(ctx context.Context, limit int) ([]SenderGreeting, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []joinedRow
	err := s.greetingQuery(ctx).Order("g.created_at DESC, g.id DESC").Limit(limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toGreetings(rows), nil
}

func (s *gormStore) MarkGreetingDelivered(ctx context.Context, id int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&greetingRow{}).
		Where("id = ? AND delivered = ?", id, false).
		Update("delivered", true)
	return res.RowsAffected > 0, res.Error
}

func (s *gormStore) GreetingSenderIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&greetingRow{}).Distinct("user_id").Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// ---- media ----

func (s *gormStore) AddMedia(ctx context.Context, m MediaItem) (int64, error) {
	row := mediaRow{UserID: m.UserID, Kind: string(m.Kind), FileRef: m.FileRef, CreatedAt: nowIfZero(m.CreatedAt)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *gormStore) CountUserMedia(ctx context.Context, userID int64) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&mediaRow{}).Where("user_id = ?", userID).Count(&n).Error
	return int(n), err
}

func (s *gormStore) listMedia(ctx context.Context, unsentOnly bool) ([]MediaItem, error) {
	q := s.db.WithContext(ctx).Order("created_at, id")
	if unsentOnly {
		q = q.Where("sent = ?", false)
	}
	var rows []mediaRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]MediaItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.item())
	}
	return out, nil
}

func (s *gormStore) ListMedia(ctx context.Context) ([]MediaItem, error) {
	return s.listMedia(ctx, false)
}

func (s *gormStore) UnsentMedia(ctx context.Context) ([]MediaItem, error) {
	return s.listMedia(ctx, true)
}

func (s *gormStore) MarkMediaSent(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += 500 {
			end := min(start+500, len(ids))
			res := tx.Model(&mediaRow{}).Where("sent = ? AND id IN ?", false, ids[start:end]).Update("sent", true)
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ---- songs ----

func (s *gormStore) AddSong(ctx context.Context, song SongSuggestion) (int64, error) {
	row := songRow{UserID: song.UserID, Text: song.Text, CreatedAt: nowIfZero(song.CreatedAt)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *gormStore) ListSongs(ctx context.Context) ([]SongEntry, error) {
	var rows []joinedRow
	err := s.db.WithContext(ctx).Table("songs AS s").
		Select("s.id, s.user_id, s.text, s.created_at, u.username, u.first_name, u.last_name, u.remembers").
		Joins("LEFT JOIN users u ON u.user_id = s.user_id").
		Order("s.created_at DESC, s.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]SongEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, SongEntry{
			SongSuggestion: SongSuggestion{ID: r.ID, UserID: r.UserID, Text: r.Text, CreatedAt: r.CreatedAt},
			Sender:         r.sender(),
		})
	}
	return out, nil
}

// ---- wishlist ----

func (s *gormStore) AddWishlistItem(ctx context.Context, text string, createdBy int64) (int64, error) {
	row := wishlistRow{Text: text, CreatedBy: createdBy, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *gormStore) ListWishlist(ctx context.Context) ([]WishlistEntry, error) {
	var rows []wishlistRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]WishlistEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, WishlistEntry{ID: r.ID, Text: r.Text, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (s *gormStore) DeleteWishlistItem(ctx context.Context, id int64) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&wishlistRow{}, id)
	return res.RowsAffected > 0, res.Error
}

// ---- attendance ----

func (s *gormStore) ConfirmAttendance(ctx context.Context, userID int64) (bool, int, error) {
	var (
		created bool
		count   int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&attendanceRow{UserID: userID, ConfirmedAt: time.Now()})
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return tx.Model(&attendanceRow{}).Count(&count).Error
	})
	if err != nil {
		return false, 0, err
	}
	return created, int(count), nil
}

func (s *gormStore) AttendanceCount(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&attendanceRow{}).Count(&n).Error
	return int(n), err
}

func (s *gormStore) ListAttendance(ctx context.Context) ([]Attendee, error) {
	var rows []struct {
		UserID      int64
		ConfirmedAt time.Time
		Username    *string
		FirstName   *string
		LastName    *string
		Remembers   *bool
	}
	err := s.db.WithContext(ctx).Table("attendance AS a").
		Select("a.user_id, a.confirmed_at, u.username, u.first_name, u.last_name, u.remembers").
		Joins("LEFT JOIN users u ON u.user_id = a.user_id").
		Order("a.confirmed_at, a.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Attendee, 0, len(rows))
	for _, r := range rows {
		j := joinedRow{UserID: r.UserID, Username: r.Username, FirstName: r.FirstName, LastName: r.LastName, Remembers: r.Remembers}
		out = append(out, Attendee{User: j.sender(), ConfirmedAt: r.ConfirmedAt})
	}
	return out, nil
}

// ---- welcome photos ----

func (s *gormStore) SetWelcomePhoto(ctx context.Context, p WelcomePhoto) (int64, error) {
	row := welcomePhotoRow{Category: string(p.Category), FileRef: p.FileRef, Caption: p.Caption, Active: true, CreatedAt: nowIfZero(p.CreatedAt)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&welcomePhotoRow{}).
			Where("category = ? AND active = ?", string(p.Category), true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *gormStore) ActiveWelcomePhoto(ctx context.Context, cat PhotoCategory) (WelcomePhoto, bool, error) {
	var row welcomePhotoRow
	err := s.db.WithContext(ctx).
		Where("category = ? AND active = ?", string(cat), true).
		Order("id DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WelcomePhoto{}, false, nil
	}
	if err != nil {
		return WelcomePhoto{}, false, err
	}
	return row.photo(), true, nil
}

func (s *gormStore) ListWelcomePhotos(ctx context.Context) ([]WelcomePhoto, error) {
	var rows []welcomePhotoRow
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]WelcomePhoto, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.photo())
	}
	return out, nil
}

// ---- stats ----

func (s *gormStore) Stats(ctx context.Context) (Stats, error) {
	db := s.db.WithContext(ctx)
	var st Stats
	count := func(dst *int, model any, where string, args ...any) error {
		q := db.Model(model)
		if where != "" {
			q = q.Where(where, args...)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return err
		}
		*dst = int(n)
		return nil
	}
	steps := []func() error{
		func() error { return count(&st.Users, &userRow{}, "") },
		func() error { return count(&st.RemembersYes, &userRow{}, "remembers = ?", true) },
		func() error { return count(&st.RemembersNo, &userRow{}, "remembers = ?", false) },
		func() error { return count(&st.RemembersUnknown, &userRow{}, "remembers IS NULL") },
		func() error { return count(&st.Greetings, &greetingRow{}, "") },
		func() error { return count(&st.GreetingsDelivered, &greetingRow{}, "delivered = ?", true) },
		func() error { return count(&st.Media, &mediaRow{}, "") },
		func() error { return count(&st.MediaSent, &mediaRow{}, "sent = ?", true) },
		func() error { return count(&st.Songs, &songRow{}, "") },
		func() error { return count(&st.Wishlist, &wishlistRow{}, "") },
		func() error { return count(&st.Attendance, &attendanceRow{}, "") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}
