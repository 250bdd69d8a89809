//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/store"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *store.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = store.NewRedisCache(s.redis.Client, 5*time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestCertificateRoundTrip() {
	ctx := context.Background()
	certs := store.NewCertificateCache(s.cache)
	cert := models.Certificate{ID: "31", TokenID: 31, UniqueID: "CERT-31", CourseName: "Redis 101"}

	_, err := certs.Put(ctx, cert)
	s.Require().NoError(err)

	found, err := certs.Get(ctx, "31")
	s.Require().NoError(err)
	s.Equal(cert, *found)

	ttl, err := s.redis.TTL(ctx, "certificate_cache_31")
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 5*time.Minute)
}

func (s *RedisCacheSuite) TestMissReturnsErrNotFound() {
	_, err := s.cache.Get(context.Background(), "certificate_cache_absent")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestTTLEviction() {
	ctx := context.Background()
	short := store.NewRedisCache(s.redis.Client, 50*time.Millisecond)

	s.Require().NoError(short.Set(ctx, "certificate_cache_ttl", []byte(`{"id":"ttl"}`)))
	time.Sleep(120 * time.Millisecond)

	_, err := short.Get(ctx, "certificate_cache_ttl")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestRevocationIsNotOverwritten() {
	ctx := context.Background()
	certs := store.NewCertificateCache(s.cache, store.WithNamespace("it"))

	_, err := certs.Put(ctx, models.Certificate{ID: "1", IsRevoked: true, RevocationReason: "fraud"})
	s.Require().NoError(err)
	_, err = certs.Put(ctx, models.Certificate{ID: "1"})
	s.Require().NoError(err)

	found, err := certs.Get(ctx, "1")
	s.Require().NoError(err)
	s.True(found.IsRevoked)
}
