// Package storage is the content store: users, greetings, media, songs,
// wishlist, attendance and welcome photos.
//
// Drivers:
//   - "sqlite": database/sql over modernc.org/sqlite with embedded migrations
//   - "gorm-sqlite": GORM over github.com/glebarez/sqlite (build tag gormsqlite)
//   - "postgres": GORM over gorm.io/driver/postgres
//
// modernc.org/sqlite and glebarez/go-sqlite both register the database/sql
// driver name "sqlite", so only one of them is linked per build.
package storage
