package services

// ProductInput is the raw admin form. Price stays text so the service owns the
// numeric check.
type ProductInput struct {
	Name        string
	Price       string
	Description string
	Category    string
}

// ImageUpload is an optional file from the form. Nil or empty Data means "no image".
type ImageUpload struct {
	Filename string
	Data     []byte
}

func (i *ImageUpload) present() bool { return i != nil && len(i.Data) > 0 }

type FormMode int

const (
	ModeCreate FormMode = iota
	ModeEdit
)

func (m FormMode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// ProductForm is the admin form state: either a new product, or an edit of
// OriginalID. OriginalID is meaningful only in ModeEdit.
type ProductForm struct {
	Mode       FormMode
	OriginalID int64
	Input      ProductInput
}

func CreateForm(in ProductInput) ProductForm { return ProductForm{Mode: ModeCreate, Input: in} }

func EditForm(id int64, in ProductInput) ProductForm {
	return ProductForm{Mode: ModeEdit, OriginalID: id, Input: in}
}
