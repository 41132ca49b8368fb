package api

import (
	"github.com/gofiber/fiber/v2"

	"telco-rewards/internal/model"
	"telco-rewards/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse is a user with completed activities listed by id.
type userResponse struct {
	*model.User
	CompletedActivities []string `json:"completed_activities"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{User: u, CompletedActivities: u.CompletedActivityIDs()}
}

func authResponse(msg string, res *service.AuthResult) fiber.Map {
	return fiber.Map{
		"message":   msg,
		"user":      newUserResponse(res.User),
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
	}
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req service.RegisterInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.auth.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse("User registered successfully", res))
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Email and password are required")
	}
	res, err := s.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(authResponse("Login successful", res))
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if err := s.auth.Logout(c.UserContext(), currentToken(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Logout successful"})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	res, err := s.auth.Refresh(c.UserContext(), currentToken(c))
	if err != nil {
		return err
	}
	return c.JSON(authResponse("Token refreshed successfully", res))
}

// recentEntries is how many journal entries /me includes.
const recentEntries = 5

func (s *Server) handleMe(c *fiber.Ctx) error {
	sum, err := s.profile.Summary(c.UserContext(), currentUserID(c), recentEntries)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"user":     newUserResponse(sum.User),
		"position": sum.Position,
		"recent":   nonNil(sum.Recent),
	})
}
