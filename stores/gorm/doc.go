// Package gorm provides a GORM implementation of lmsauth.Store. It works with
// any dialect GORM supports; the server opens it with the postgres driver.
//
// # Usage
//
//	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	if err != nil { ... }
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	store := gormstore.NewStore(db)
package gorm
