package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/repository"
	"github.com/noah-isme/sma-teacher-attendance/internal/service"
	"github.com/noah-isme/sma-teacher-attendance/pkg/config"
	"github.com/noah-isme/sma-teacher-attendance/pkg/database"
	"github.com/noah-isme/sma-teacher-attendance/pkg/logger"
)

const (
	defaultAdminLogin = "admin@school.com"
	defaultAdminName  = "Admin User"
)

func main() {
	login := flag.String("login", defaultAdminLogin, "admin phone number or email")
	pin := flag.String("pin", envOr("SEED_ADMIN_PIN", "1234"), "admin PIN (4-6 digits)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	cfg.Database.AutoMigrate = true
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	users := repository.NewUserRepository(db)
	if err := seedAdmin(ctx, users, strings.TrimSpace(*login), *pin, logr); err != nil {
		logr.Fatal("seed admin", zap.Error(err))
	}

	policies := service.NewPolicyService(repository.NewPolicyRepository(db), nil, nil, cfg.Attendance, nil, logr)
	policy, err := policies.Current(ctx)
	if err != nil {
		logr.Fatal("seed settings", zap.Error(err))
	}
	logr.Info("school settings ready",
		zap.String("start_time", policy.StartTime),
		zap.String("end_time", policy.EndTime),
		zap.String("weekend_days", policy.WeekendDays),
	)
	logr.Info("seeding completed; add teachers through the API")
}

func seedAdmin(ctx context.Context, users *repository.UserRepository, login, pin string, logr *zap.Logger) error {
	existing, err := users.FindByPhoneOrEmail(ctx, login)
	if err == nil {
		logr.Info("admin user already exists", zap.String("id", existing.ID), zap.String("login", login))
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if !validPIN(pin) {
		return fmt.Errorf("pin must be 4 to 6 digits")
	}
	hash, err := service.HashPIN(pin)
	if err != nil {
		return err
	}
	admin := &models.User{
		Name:         defaultAdminName,
		PhoneOrEmail: login,
		PinHash:      hash,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}
	logr.Info("admin user created", zap.String("id", admin.ID), zap.String("login", login))
	return nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
