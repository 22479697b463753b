package security

import "golang.org/x/crypto/bcrypt"

const bcryptCost = 12

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// burnDigest is a fixed cost-12 bcrypt digest compared against on login paths
// where no stored hash exists, so those attempts cost the same as a real
// comparison.
const burnDigest = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

func BurnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword([]byte(burnDigest), []byte(plain))
}
