package service

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tabloom/tabloom-back/internal/config"
	"github.com/tabloom/tabloom-back/internal/db"
)

const RoleAdmin = "admin"

type (
	Auth struct {
		db     *gorm.DB
		logger *zap.SugaredLogger
		secret []byte
		ttl    time.Duration
	}

	Identity struct {
		User  db.User
		Token string
	}
)

func NewAuth(gdb *gorm.DB, logger *zap.SugaredLogger, cfg *config.Config) *Auth {
	return &Auth{
		db:     gdb,
		logger: logger,
		secret: []byte(cfg.JWTSecret),
		ttl:    time.Duration(cfg.JWTTTLHours) * time.Hour,
	}
}

// Register creates the one and only admin account. Once an admin exists
// every further registration is rejected.
func (s *Auth) Register(email, pass string) (*Identity, error) {
	var admins int64
	res := s.db.Model(&db.User{}).Where("role = ?", RoleAdmin).Count(&admins)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "count admins")
	}
	if admins > 0 {
		return nil, errors.Wrap(ErrForbidden, "admin already exists, registration disabled")
	}

	var existing int64
	res = s.db.Model(&db.User{}).Where("email = ?", email).Count(&existing)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "check email")
	}
	if existing > 0 {
		return nil, errors.Wrap(ErrConflict, "email already in use")
	}

	hash, err := s.bcryptGen(pass)
	if err != nil {
		return nil, errors.Wrap(err, "bcryptGen")
	}

	user := db.User{
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
	}
	if res := s.db.Create(&user); res.Error != nil {
		return nil, res.Error
	}

	token, err := s.IssueToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Identity{User: user, Token: token}, nil
}

func (s *Auth) Login(email, pass string) (*Identity, error) {
	user := db.User{}
	res := s.db.Where("email = ?", email).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrUnauthorized, "invalid credentials")
		}
		return nil, res.Error
	}

	if err := s.bcryptCheck(user.PasswordHash, pass); err != nil {
		return nil, errors.Wrap(ErrUnauthorized, "invalid credentials")
	}

	token, err := s.IssueToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Identity{User: user, Token: token}, nil
}

func (s *Auth) IssueToken(userID uint64, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// VerifyToken validates the signature and expiry, then resolves the claimed
// user against the store. A token for a since-removed user is invalid.
func (s *Auth) VerifyToken(tokenStr string) (*db.User, error) {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(ErrUnauthorized, "invalid or expired token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(ErrUnauthorized, "malformed claims")
	}
	rawID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, errors.Wrap(ErrUnauthorized, "malformed claims")
	}

	user := db.User{}
	res := s.db.First(&user, uint64(rawID))
	if res.Error != nil {
		return nil, errors.Wrap(ErrUnauthorized, "unknown user")
	}
	return &user, nil
}

func (s *Auth) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *Auth) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}
