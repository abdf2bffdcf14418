package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketchain/entity"
	"ticketchain/metadata"
)

type postGenerateMetadataResponse struct {
	Document   entity.MetadataDocument `json:"document"`
	Validation entity.ValidationResult `json:"validation"`
}

// PostValidateMetadata validates the raw request body, so malformed JSON is reported as a validation error.
func (s Server) PostValidateMetadata(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read request body")
	}

	return c.JSON(http.StatusOK, metadata.ValidateJSON(string(body)))
}

func (s Server) PostGenerateMetadata(c echo.Context) error {
	var fields entity.TicketFields
	if err := c.Bind(&fields); err != nil {
		return err
	}

	doc, err := metadata.Generate(fields)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, postGenerateMetadataResponse{
		Document:   doc,
		Validation: metadata.ValidateDocument(doc),
	})
}
