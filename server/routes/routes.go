package routes

import (
	"errors"
	"strconv"
	"sync"

	"blockidx/btree"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handle serialises every request onto one open tree; the engine itself is
// not safe for concurrent use.
type Handle struct {
	mu     sync.Mutex
	tree   *btree.BTree
	logger *zap.Logger
}

func NewHandle(tree *btree.BTree, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{tree: tree, logger: logger}
}

type pair struct {
	Key   uint64 `json:"key"`
	Value uint64 `json:"value"`
}

func parseKey(c *fiber.Ctx) (uint64, error) {
	raw := c.Query("key")
	if raw == "" {
		return 0, errors.New("key required")
	}
	key, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("key must be an unsigned 64-bit integer")
	}
	return key, nil
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func SetupRoutes(router fiber.Router, h *Handle) {
	router.Get("/search", func(c *fiber.Ctx) error {
		key, err := parseKey(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		h.mu.Lock()
		value, found, err := h.tree.Search(key)
		h.mu.Unlock()
		if err != nil {
			return internalError(c, err)
		}
		if !found {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "key not found", "key": key})
		}
		return c.JSON(pair{Key: key, Value: value})
	})

	router.Post("/insert", func(c *fiber.Ctx) error {
		var body struct {
			Key   *uint64 `json:"key"`
			Value *uint64 `json:"value"`
		}
		if err := c.BodyParser(&body); err != nil || body.Key == nil || body.Value == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key and value required"})
		}

		h.mu.Lock()
		err := h.tree.Insert(*body.Key, *body.Value)
		h.mu.Unlock()
		if err != nil {
			h.logger.Error("insert failed", zap.Uint64("key", *body.Key), zap.Error(err))
			return internalError(c, err)
		}
		return c.JSON(fiber.Map{"status": "inserted", "key": *body.Key, "value": *body.Value})
	})

	router.Get("/pairs", func(c *fiber.Ctx) error {
		pairs := []pair{}
		h.mu.Lock()
		err := h.tree.Traverse(func(key, value uint64) error {
			pairs = append(pairs, pair{Key: key, Value: value})
			return nil
		})
		h.mu.Unlock()
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(fiber.Map{"pairs": pairs, "count": len(pairs)})
	})

	router.Get("/stats", func(c *fiber.Ctx) error {
		h.mu.Lock()
		header := h.tree.Header()
		cacheStats := h.tree.CacheStats()
		h.mu.Unlock()
		return c.JSON(fiber.Map{
			"root":  header.RootID,
			"next":  header.NextID,
			"cache": cacheStats,
		})
	})

	router.Get("/verify", func(c *fiber.Ctx) error {
		h.mu.Lock()
		stats, err := h.tree.Verify()
		h.mu.Unlock()
		if errors.Is(err, btree.ErrCorrupt) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"status": "corrupt", "error": err.Error()})
		}
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(fiber.Map{"status": "ok", "stats": stats})
	})
}
