package models

import (
	"fmt"
	"strings"
	"unicode"

	"intake/pkg/validation"
)

// Document references a file attached to a consent, already uploaded.
type Document struct {
	FileName     string `json:"fileName"`
	OriginalName string `json:"originalName"`
	Path         string `json:"path"`
	URL          string `json:"url"`
}

// Consent is the data-treatment authorization (autorización de datos).
type Consent struct {
	ID             string `json:"id,omitempty"`
	FechaSolicitud string `json:"fechaSolicitud,omitempty"`

	Email string `json:"email" validate:"notblank,email"`

	AutorizacionTratamientoDatos bool `json:"autorizacionTratamientoDatos" validate:"eq=true"`
	AutorizacionContacto         bool `json:"autorizacionContacto" validate:"eq=true"`

	NombreCompleto           string `json:"nombreCompleto" validate:"notblank,min=3,max=100,personname"`
	TipoDocumento            string `json:"tipoDocumento" validate:"notblank,oneof=CC CE PA PEP PPP"`
	NumeroDocumento          string `json:"numeroDocumento" validate:"notblank"`
	FechaNacimiento          string `json:"fechaNacimiento" validate:"notblank,adult,plausibleage"`
	FechaExpedicionDocumento string `json:"fechaExpedicionDocumento" validate:"notblank,pastdate"`

	CiudadNegocio    string `json:"ciudadNegocio" validate:"notblank"`
	DireccionNegocio string `json:"direccionNegocio" validate:"notblank,min=5,max=200"`
	CelularNegocio   string `json:"celularNegocio" validate:"notblank,mobile"`

	Documento *Document `json:"documento,omitempty"`
	UserID    *string   `json:"userId"`
}

// documentRule is the length (and digit) rule for a document number.
type documentRule struct {
	min, max   int
	digitsOnly bool
}

var documentRules = map[string]documentRule{
	"CC":  {min: 8, max: 10, digitsOnly: true},
	"CE":  {min: 6, max: 10},
	"PA":  {min: 6, max: 12},
	"PEP": {min: 6, max: 12},
	"PPP": {min: 6, max: 12},
}

// Validate reports every violated rule, including the per-type document
// number rule.
func (c Consent) Validate() error {
	errs := validation.Check(c)
	if msg := checkDocumentNumber(c.TipoDocumento, c.NumeroDocumento); msg != "" && !hasField(errs, "numeroDocumento") {
		errs = append(errs, validation.FieldError{Field: "numeroDocumento", Message: msg})
	}
	return errs.Err()
}

func checkDocumentNumber(kind, number string) string {
	rule, ok := documentRules[kind]
	if !ok {
		return ""
	}
	n := strings.Join(strings.Fields(number), "")
	if n == "" {
		return ""
	}
	if rule.digitsOnly && strings.IndexFunc(n, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return fmt.Sprintf("numeroDocumento for %s must contain only digits", kind)
	}
	if l := len([]rune(n)); l < rule.min || l > rule.max {
		return fmt.Sprintf("numeroDocumento for %s must have between %d and %d characters", kind, rule.min, rule.max)
	}
	return ""
}

// Prepare trims text fields and lowercases the email.
func (c Consent) Prepare() Consent {
	t := strings.TrimSpace
	out := c
	out.Email = strings.ToLower(t(c.Email))
	out.NombreCompleto = t(c.NombreCompleto)
	out.TipoDocumento = t(c.TipoDocumento)
	out.NumeroDocumento = strings.Join(strings.Fields(c.NumeroDocumento), "")
	out.FechaNacimiento = t(c.FechaNacimiento)
	out.FechaExpedicionDocumento = t(c.FechaExpedicionDocumento)
	out.CiudadNegocio = t(c.CiudadNegocio)
	out.DireccionNegocio = t(c.DireccionNegocio)
	out.CelularNegocio = t(c.CelularNegocio)
	return out
}
