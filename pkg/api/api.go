// Package api implements the tcalc REST API: evaluation sessions plus
// stateless evaluate and parse endpoints.
package api

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/modules"
	"github.com/lemonberrylabs/tcalc/pkg/store"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// Server is the REST API server.
type Server struct {
	app     *fiber.App
	store   *store.Store
	parser  *expr.Parser
	modules *modules.Dir
}

// New creates a new API server.
func New(s *store.Store) *Server {
	srv := &Server{
		store:  s,
		parser: expr.NewParser(),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	// Sessions API
	app.Post("/v1/sessions", srv.createSession)
	app.Get("/v1/sessions", srv.listSessions)
	app.Get("/v1/sessions/:session", srv.getSession)
	app.Delete("/v1/sessions/:session", srv.deleteSession)
	app.Post("/v1/sessions/:session\\:evaluate", srv.evaluateInSession)
	app.Post("/v1/sessions/:session\\:evaluateProgram", srv.evaluateProgramInSession)
	app.Post("/v1/sessions/:session\\:reset", srv.resetSession)

	// Stateless API
	app.Post("/v1/expressions\\:evaluate", srv.evaluateExpression)
	app.Post("/v1/expressions\\:parse", srv.parseExpression)

	// Modules API
	app.Get("/v1/modules", srv.listModules)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// SetParser replaces the parser used by the parse endpoint.
func (s *Server) SetParser(p *expr.Parser) {
	s.parser = p
}

// --- Session Handlers ---

type createSessionRequest struct {
	Description string `json:"description"`
}

func (s *Server) createSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
		}
	}

	sess, err := s.store.CreateSession(c.Query("sessionId"), req.Description)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			return errorJSON(c, 409, "ALREADY_EXISTS", err.Error())
		case errors.Is(err, store.ErrInvalidID):
			return errorJSON(c, 400, "INVALID_ARGUMENT", err.Error())
		}
		return errorJSON(c, 500, "INTERNAL", err.Error())
	}

	log.Printf("Created session %s", sess.ID)
	return c.Status(200).JSON(sessionToJSON(sess.Info(false)))
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	sessions := s.store.ListSessions()
	items := make([]fiber.Map, len(sessions))
	for i, sess := range sessions {
		items[i] = sessionToJSON(sess.Info(false))
	}
	return c.JSON(fiber.Map{
		"sessions": items,
	})
}

func (s *Server) getSession(c *fiber.Ctx) error {
	sess, err := s.store.GetSession(c.Params("session"))
	if err != nil {
		return errorJSON(c, 404, "NOT_FOUND", err.Error())
	}
	return c.JSON(sessionToJSON(sess.Info(c.Query("view") == "FULL")))
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	id := c.Params("session")
	if err := s.store.DeleteSession(id); err != nil {
		return errorJSON(c, 404, "NOT_FOUND", err.Error())
	}
	log.Printf("Deleted session %s", id)
	return c.JSON(fiber.Map{})
}

func (s *Server) resetSession(c *fiber.Ctx) error {
	sess, err := s.store.GetSession(c.Params("session"))
	if err != nil {
		return errorJSON(c, 404, "NOT_FOUND", err.Error())
	}
	sess.Reset()
	return c.JSON(sessionToJSON(sess.Info(false)))
}

type evaluateRequest struct {
	Expression string `json:"expression"`
	Program    string `json:"program"`
}

func (s *Server) evaluateInSession(c *fiber.Ctx) error {
	sess, err := s.store.GetSession(c.Params("session"))
	if err != nil {
		return errorJSON(c, 404, "NOT_FOUND", err.Error())
	}

	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Expression == "" {
		return errorJSON(c, 400, "INVALID_ARGUMENT", "expression is required")
	}

	v, err := sess.Evaluate(req.Expression)
	if err != nil {
		return languageError(c, err)
	}
	return c.JSON(resultJSON(v))
}

func (s *Server) evaluateProgramInSession(c *fiber.Ctx) error {
	sess, err := s.store.GetSession(c.Params("session"))
	if err != nil {
		return errorJSON(c, 404, "NOT_FOUND", err.Error())
	}

	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	vs, err := sess.EvaluateProgram(req.Program)
	if err != nil {
		return languageError(c, err)
	}
	return c.JSON(resultsJSON(vs))
}

// --- Stateless Handlers ---

func (s *Server) evaluateExpression(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	switch {
	case req.Expression != "" && req.Program != "":
		return errorJSON(c, 400, "INVALID_ARGUMENT", "only one of expression and program may be set")
	case req.Expression != "":
		vs, err := s.store.Evaluate(store.ModeExpression, req.Expression)
		if err != nil {
			return languageError(c, err)
		}
		return c.JSON(resultJSON(vs[0]))
	default:
		vs, err := s.store.Evaluate(store.ModeProgram, req.Program)
		if err != nil {
			return languageError(c, err)
		}
		return c.JSON(resultsJSON(vs))
	}
}

type parseRequest struct {
	Source string `json:"source"`
	Mode   string `json:"mode"`
}

func (s *Server) parseExpression(c *fiber.Ctx) error {
	var req parseRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	var node expr.Node
	var statements int
	switch store.Mode(req.Mode) {
	case store.ModeProgram:
		prog, err := s.parser.ParseProgram(req.Source)
		if err != nil {
			return languageError(c, err)
		}
		node, statements = prog, len(prog.Statements)
	case store.ModeExpression, "":
		n, err := s.parser.ParseExpression(req.Source)
		if err != nil {
			return languageError(c, err)
		}
		node, statements = n, 1
	default:
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("unknown mode %q", req.Mode))
	}

	return c.JSON(fiber.Map{
		"canonical":   expr.Format(node),
		"fingerprint": expr.FingerprintHex(node),
		"statements":  statements,
	})
}

// --- Modules ---

func (s *Server) listModules(c *fiber.Ctx) error {
	if s.modules == nil {
		return c.JSON(fiber.Map{"modules": []fiber.Map{}})
	}
	names, err := s.modules.List()
	if err != nil {
		return errorJSON(c, 500, "INTERNAL", err.Error())
	}

	items := make([]fiber.Map, 0, len(names))
	for _, name := range names {
		item := fiber.Map{"name": name}
		exports, err := s.modules.Resolve(name)
		if err != nil {
			item["error"] = err.Error()
		} else {
			fns := make(fiber.Map, len(exports))
			for fn, callable := range exports {
				fns[fn] = fiber.Map{"arity": callable.Arity}
			}
			item["exports"] = fns
		}
		items = append(items, item)
	}
	return c.JSON(fiber.Map{"modules": items})
}

// LoadModules loads every module in d so broken files are reported at
// startup, and serves d on the modules endpoint.
func (s *Server) LoadModules(d *modules.Dir) error {
	names, err := d.List()
	if err != nil {
		return err
	}
	s.modules = d

	loaded := 0
	for _, name := range names {
		if _, err := d.Resolve(name); err != nil {
			log.Printf("Warning: could not load module %q: %v", name, err)
			continue
		}
		loaded++
	}
	log.Printf("Loaded %d module(s) from %s", loaded, d.Root())
	return nil
}

// --- Helpers ---

func errorJSON(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

// languageError reports a tcalc error with its kind and source position.
func languageError(c *fiber.Ctx, err error) error {
	kind := types.KindOf(err)
	if kind == 0 {
		return errorJSON(c, 500, "INTERNAL", err.Error())
	}

	code, status := StatusForKind(kind)
	body := fiber.Map{
		"code":    code,
		"message": err.Error(),
		"status":  status,
		"kind":    kind.String(),
	}
	if pos, ok := types.PositionOf(err); ok {
		body["position"] = fiber.Map{
			"offset": pos.Offset,
			"line":   pos.Line,
			"column": pos.Column,
		}
	}
	return c.Status(code).JSON(fiber.Map{"error": body})
}

// StatusForKind maps an error kind to an HTTP code and a status name.
func StatusForKind(kind types.Kind) (int, string) {
	switch kind {
	case types.KindLex, types.KindParse, types.KindInvalidMode:
		return 400, "INVALID_ARGUMENT"
	case types.KindRecursionLimit:
		return 400, "OUT_OF_RANGE"
	case types.KindImport:
		return 424, "FAILED_PRECONDITION"
	default:
		return 422, "FAILED_PRECONDITION"
	}
}

// number renders v for JSON; NaN and infinities become strings.
func number(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return types.FormatNumber(v)
	}
	return v
}

func resultJSON(v float64) fiber.Map {
	return fiber.Map{
		"result":  number(v),
		"display": types.FormatNumber(v),
	}
}

func resultsJSON(vs []float64) fiber.Map {
	results := make([]any, len(vs))
	display := make([]string, len(vs))
	for i, v := range vs {
		results[i] = number(v)
		display[i] = types.FormatNumber(v)
	}
	return fiber.Map{
		"results": results,
		"display": display,
	}
}

func sessionToJSON(info store.Info) fiber.Map {
	vars := make(fiber.Map, len(info.Variables))
	for k, v := range info.Variables {
		vars[k] = number(v)
	}

	result := fiber.Map{
		"name":        info.Name,
		"id":          info.ID,
		"description": info.Description,
		"createTime":  info.CreateTime.Format(time.RFC3339),
		"updateTime":  info.UpdateTime.Format(time.RFC3339),
		"evaluations": info.Evaluations,
		"variables":   vars,
		"functions":   info.Functions,
	}

	if info.History != nil {
		history := make([]fiber.Map, len(info.History))
		for i, e := range info.History {
			entry := fiber.Map{
				"mode":   e.Mode,
				"source": e.Source,
				"time":   e.Time.Format(time.RFC3339),
			}
			if e.Error != "" {
				entry["error"] = e.Error
			} else {
				entry["results"] = resultsJSON(e.Results)["results"]
			}
			history[i] = entry
		}
		result["history"] = history
	}
	return result
}
