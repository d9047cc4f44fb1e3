package schema

// defaultFields mirrors the built-in BHXH document schema the service ships
// with. Field order drives table and export column order.
var defaultOrder = []string{
	"Họ và tên",
	"Ngày sinh",
	"Mã BHXH",
	"Mã BHYT",
	"CCCD/CMND",
	"Ngày bắt đầu",
	"Ngày kết thúc",
	"Tổng số ngày",
	"Mã bệnh",
	"Tên bệnh",
	"Số serial",
	"Ghi chú",
}

var defaultFields = map[string]FieldSpec{
	"Họ và tên": {
		Type:        TypeString,
		Required:    true,
		Description: "Full name in capital letters; the main person the document is about.",
		Example:     "NGUYỄN VĂN A",
	},
	"Ngày sinh": {
		Type:        TypeDate,
		Description: "Date of birth in DD/MM/YYYY format.",
		Example:     "01/01/2000",
	},
	"Mã BHXH": {
		Type:        TypeString,
		Description: "Social insurance id: 10 digits, starts with a digit.",
		Example:     "1234567890",
	},
	"Mã BHYT": {
		Type:        TypeString,
		Description: "Health insurance card id; two letters followed by digits.",
		Example:     "4567890123",
	},
	"CCCD/CMND": {
		Type:        TypeString,
		Description: "Personal id number; digit count may vary.",
		Example:     "123456789012",
	},
	"Ngày bắt đầu": {
		Type:        TypeDate,
		Description: "Treatment start date in DD/MM/YYYY format.",
		Example:     "01/01/2023",
	},
	"Ngày kết thúc": {
		Type:        TypeDate,
		Description: "Treatment end date in DD/MM/YYYY format.",
		Example:     "05/01/2023",
	},
	"Tổng số ngày": {
		Type:        TypeNumber,
		Description: "Total treatment days; if absent, end minus start plus one.",
		Example:     "5",
	},
	"Mã bệnh": {
		Type:        TypeString,
		Description: "Diagnosis code(s), letter plus digits, semicolon separated.",
		Example:     "A00;B00.1;S92.4",
	},
	"Tên bệnh": {
		Type:        TypeString,
		Description: "Diagnosis name(s), semicolon separated.",
		Example:     "Sốt xuất huyết;Cúm A",
	},
	"Số serial": {
		Type:        TypeString,
		Description: "Document serial number, usually near the top of the page.",
		Example:     "123456789",
	},
	"Ghi chú": {
		Type:        TypeString,
		Description: "Free-form notes: address, workplace, contact details and similar context.",
		Example:     "Nghỉ 3 ngày từ 01/01/2023 đến 03/01/2023",
	},
}

// Default returns a fresh copy of the built-in schema.
func Default() *Schema {
	s, err := New(defaultFields, defaultOrder)
	if err != nil {
		// Static data; a failure here is a programming error.
		panic(err)
	}
	return s
}
