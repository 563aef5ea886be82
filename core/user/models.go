package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/ufaulu/core"
)

// Roles
const (
	// Admin
	RoleAdmin           = "admin:"
	RoleAdminUniversity = "admin:university"
	RoleAdminDepartment = "admin:department"

	// Program Coordinator
	RoleCoordinator = "coordinator:"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles       = []string{RoleAdmin, RoleAdminUniversity, RoleAdminDepartment}
	CoordinatorRoles = []string{RoleCoordinator}
	TeacherRoles     = []string{RoleTeacher}
	StudentRoles     = []string{RoleStudent}
	AllRoles         = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 40 - 31
		RoleAdminUniversity: 40,
		RoleAdminDepartment: 39,
		RoleAdmin:           31,

		// Coordinators: 30 - 21
		RoleCoordinator: 21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Program Coordinator", Value: RoleCoordinator},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Department", Value: RoleAdminDepartment},
		{Name: "Admin University", Value: RoleAdminUniversity},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 6)
	all = append(all, AdminRoles...)
	all = append(all, CoordinatorRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the authenticated-user context the attainment engine's callers carry:
// role set plus scoping IDs narrowing what the user may touch.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     *bool     `json:"is_active"`
	Roles        []string  `json:"roles"`
	CollegeID    string    `json:"college_id,omitempty"`
	ProgramID    string    `json:"program_id,omitempty"`
	BatchID      string    `json:"batch_id,omitempty"`
	SectionID    string    `json:"section_id,omitempty"`
	RollNo       string    `json:"roll_no,omitempty"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool       { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsCoordinator() bool { return u.RoleStartsWith(RoleCoordinator) }
func (u *User) IsTeacher() bool     { return u.RoleStartsWith(RoleTeacher) }
func (u *User) IsStudent() bool     { return u.RoleStartsWith(RoleStudent) }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	CollegeID       string   `json:"college_id"`
	ProgramID       string   `json:"program_id"`
	BatchID         string   `json:"batch_id"`
	SectionID       string   `json:"section_id"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CollegeID   string    `query:"college_id"`
	ProgramID   string    `query:"program_id"`
	BatchID     string    `query:"batch_id"`
	SectionID   string    `query:"section_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil &&
		qf.CollegeID == "" && qf.ProgramID == "" && qf.BatchID == "" && qf.SectionID == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
