package server

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// apiKeyAuth accepts requests whose header value matches one of the bcrypt
// hashes in cfg. It lets every request through when no hash is configured.
func (s *Server) apiKeyAuth(cfg config.CallbackAuthConfig) gin.HandlerFunc {
	header := cfg.Header
	if header == "" {
		header = config.DefaultAPIKeyHeader
	}
	hashes := make([][]byte, 0, len(cfg.KeyHashes))
	for _, h := range cfg.KeyHashes {
		if h != "" {
			hashes = append(hashes, []byte(h))
		}
	}

	return func(c *gin.Context) {
		if len(hashes) == 0 {
			c.Next()
			return
		}

		if key := c.GetHeader(header); key != "" && matchesAny(hashes, []byte(key)) {
			c.Next()
			return
		}

		s.logger.WithContext(c.Request.Context()).Warn("callback rejected",
			observability.String("path", c.Request.URL.Path),
			observability.Bool("keyPresent", c.GetHeader(header) != ""),
		)
		s.abortWithError(c, errUnauthorized)
	}
}

func matchesAny(hashes [][]byte, key []byte) bool {
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword(h, key) == nil {
			return true
		}
	}
	return false
}
