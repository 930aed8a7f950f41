package utils

import "github.com/gofiber/fiber/v2"

// Every API response carries a success flag so clients can branch without
// inspecting status codes.
type successBody struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type pageInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type pagedBody struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Pagination pageInfo    `json:"pagination"`
}

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(successBody{Success: true, Data: data})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(errorBody{Success: false, Error: message})
}

func Message(c *fiber.Ctx, status int, message string) error {
	return Success(c, status, fiber.Map{"message": message})
}

func Paginated(c *fiber.Ctx, data interface{}, page, limit int, total int64) error {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return c.Status(fiber.StatusOK).JSON(pagedBody{
		Success: true,
		Data:    data,
		Pagination: pageInfo{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}
