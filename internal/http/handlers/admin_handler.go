package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"babyshop/internal/domain"
	applog "babyshop/internal/log"
	"babyshop/internal/services"
	"babyshop/internal/validate"
)

type AdminHandler struct {
	Catalog       *services.CatalogService
	Products      *services.ProductService
	MaxImageBytes int64
}

// GET /admin?q=
func (h *AdminHandler) List(c *fiber.Ctx) error {
	q := ""
	if raw := c.Query("q"); strings.TrimSpace(raw) != "" {
		var ok bool
		if q, ok = validate.Q(raw); !ok {
			applog.Security(c, "validation.fail", map[string]any{"field": "q"})
			return renderStatus(c, fiber.StatusBadRequest, "admin_products", fiber.Map{
				"Q": "", "Products": []any{}, "Err": "Búsqueda no válida.",
			})
		}
	}
	items, err := h.Catalog.AdminList(c.UserContext(), q)
	if err != nil {
		applog.Error(c, "admin.products.list.fail", err, nil)
		status, msg := classify(err)
		return renderStatus(c, status, "admin_products", fiber.Map{"Q": q, "Products": []any{}, "Err": msg})
	}
	return render(c, "admin_products", fiber.Map{
		"Q": q, "Products": items, "Count": len(items), "Flash": flash(c.Query("ok")),
	})
}

func flash(code string) string {
	switch code {
	case "created":
		return "Producto creado."
	case "updated":
		return "Producto actualizado."
	case "deleted":
		return "Producto eliminado."
	}
	return ""
}

// formView is what admin_form.html renders from.
type formView struct {
	Mode     string
	Action   string
	ID       int64
	Input    services.ProductInput
	ImageURL string
}

func (h *AdminHandler) renderForm(c *fiber.Ctx, status int, form services.ProductForm, imageURL string, err error) error {
	v := formView{Mode: form.Mode.String(), Action: "/admin/products", Input: form.Input, ImageURL: imageURL}
	if form.Mode == services.ModeEdit {
		v.ID = form.OriginalID
		v.Action = fmt.Sprintf("/admin/products/%d", form.OriginalID)
	}
	data := fiber.Map{
		"Form":         v,
		"Categories":   h.Catalog.Categories(),
		"MaxImageSize": sizeLabel(h.MaxImageBytes),
	}
	if err != nil {
		field, msg := fieldError(err, h.MaxImageBytes)
		data["ErrField"] = field
		data["Err"] = msg
	}
	return renderStatus(c, status, "admin_form", data)
}

// GET /admin/products/new
func (h *AdminHandler) NewForm(c *fiber.Ctx) error {
	return h.renderForm(c, fiber.StatusOK, services.CreateForm(services.ProductInput{}), "", nil)
}

// GET /admin/products/:id/edit
func (h *AdminHandler) EditForm(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return notFound(c, "El producto ya no está disponible.")
	}
	p, err := h.Catalog.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFound(c, "El producto ya no está disponible.")
		}
		applog.Error(c, "admin.products.load.fail", err, map[string]any{"id": id})
		status, msg := classify(err)
		return renderStatus(c, status, "notfound", fiber.Map{"Message": msg})
	}
	in := services.ProductInput{
		Name:        p.Name,
		Price:       p.Price.StringFixed(2),
		Description: p.Description,
		Category:    p.Category,
	}
	return h.renderForm(c, fiber.StatusOK, services.EditForm(id, in), p.ImageURL, nil)
}

func readInput(c *fiber.Ctx) services.ProductInput {
	return services.ProductInput{
		Name:        c.FormValue("name"),
		Price:       c.FormValue("price"),
		Description: c.FormValue("description"),
		Category:    c.FormValue("category"),
	}
}

// readImage returns the uploaded file, or nil when the form carries none. At
// most limit+1 bytes are read so the service can reject oversize files.
func readImage(c *fiber.Ctx, limit int64) (*services.ImageUpload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil
	}
	files := form.File["image"]
	if len(files) == 0 || files[0].Size == 0 {
		return nil, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()
	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	return &services.ImageUpload{Filename: fh.Filename, Data: data}, nil
}

func (h *AdminHandler) submit(c *fiber.Ctx, form services.ProductForm) error {
	img, err := readImage(c, h.MaxImageBytes)
	if err != nil {
		applog.Error(c, "admin.products.upload.read.fail", err, nil)
		return h.renderForm(c, fiber.StatusBadRequest, form, "", domain.Invalid("image", err.Error()))
	}
	p, err := h.Products.Submit(c.UserContext(), form, img)
	if err != nil {
		status, _ := classify(err)
		fields := map[string]any{"mode": form.Mode.String(), "id": form.OriginalID}
		var me *services.MutationError
		if errors.As(err, &me) {
			fields["stage"] = me.Stage.String()
		}
		switch {
		case status == fiber.StatusNotFound:
			return notFound(c, "El producto ya no está disponible.")
		case status < fiber.StatusInternalServerError:
			applog.Security(c, "validation.fail", fields)
		default:
			applog.Error(c, "admin.products.save.fail", err, fields)
		}
		imageURL := ""
		if form.Mode == services.ModeEdit {
			if cur, gerr := h.Catalog.Get(c.UserContext(), form.OriginalID); gerr == nil {
				imageURL = cur.ImageURL
			}
		}
		return h.renderForm(c, status, form, imageURL, err)
	}

	action, code := "admin.products.create", "created"
	if form.Mode == services.ModeEdit {
		action, code = "admin.products.update", "updated"
	}
	applog.Audit(c, action, map[string]any{"id": p.ID, "name": p.Name, "image": p.ImageURL != ""})
	return c.Redirect("/admin?ok=" + code)
}

// POST /admin/products
func (h *AdminHandler) Create(c *fiber.Ctx) error {
	return h.submit(c, services.CreateForm(readInput(c)))
}

// POST /admin/products/:id
func (h *AdminHandler) Update(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return notFound(c, "El producto ya no está disponible.")
	}
	return h.submit(c, services.EditForm(id, readInput(c)))
}

// POST /admin/products/:id/delete
func (h *AdminHandler) Delete(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return notFound(c, "El producto ya no está disponible.")
	}
	if err := h.Products.Delete(c.UserContext(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			applog.Warn(c, "admin.products.delete.missing", err, map[string]any{"id": id})
			return notFound(c, "El producto ya no está disponible.")
		}
		applog.Error(c, "admin.products.delete.fail", err, map[string]any{"id": id})
		status, msg := classify(err)
		return renderStatus(c, status, "notfound", fiber.Map{"Message": msg})
	}
	applog.Audit(c, "admin.products.delete", map[string]any{"id": id})
	return c.Redirect("/admin?ok=deleted")
}

type csvRow struct {
	ID          int64  `csv:"id"`
	Name        string `csv:"name"`
	Price       string `csv:"price"`
	Category    string `csv:"category"`
	Description string `csv:"description"`
	ImageURL    string `csv:"image_url"`
	New         bool   `csv:"new"`
	CreatedAt   string `csv:"created_at"`
	UpdatedAt   string `csv:"updated_at"`
}

// GET /admin/products.csv
func (h *AdminHandler) ExportCSV(c *fiber.Ctx) error {
	items, err := h.Catalog.AdminList(c.UserContext(), "")
	if err != nil {
		applog.Error(c, "admin.products.export.fail", err, nil)
		status, msg := classify(err)
		return c.Status(status).SendString(msg)
	}
	rows := make([]csvRow, 0, len(items))
	for _, p := range items {
		rows = append(rows, csvRow{
			ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), Category: p.Category,
			Description: p.Description, ImageURL: p.ImageURL, New: p.Fresh,
			CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		})
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		applog.Error(c, "admin.products.export.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).SendString("Algo salió mal. Intenta de nuevo.")
	}
	applog.Audit(c, "admin.products.export", map[string]any{"rows": len(rows)})
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="productos.csv"`)
	return c.Send(out)
}
