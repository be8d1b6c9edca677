package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/TheMichaelB/docvault/internal/crypto"
)

func BenchmarkDeriveKey(b *testing.B) {
	salt, err := crypto.GenerateSalt(crypto.SaltSize)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.DeriveKey("123456", salt, crypto.DefaultIterations); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncrypt(b *testing.B) {
	benchmarkEngine(b, 64*1024, false)
}

func BenchmarkDecrypt(b *testing.B) {
	benchmarkEngine(b, 64*1024, true)
}

func benchmarkEngine(b *testing.B, size int, decrypt bool) {
	engine := crypto.NewEngine()
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		b.Fatal(err)
	}

	plaintext := make([]byte, size)
	if _, err := rand.Read(plaintext); err != nil {
		b.Fatal(err)
	}

	ciphertext, err := engine.Encrypt(plaintext, key)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.SetBytes(int64(size))

	for i := 0; i < b.N; i++ {
		if decrypt {
			_, err = engine.Decrypt(ciphertext, key)
		} else {
			_, err = engine.Encrypt(plaintext, key)
		}
		if err != nil {
			b.Fatal(err)
		}
	}
}
