package attainment

import "github.com/trezcool/ufaulu/core/user"

// RecomputePolicy decides who may trigger an attainment recompute for a
// course. It is evaluated at the boundary, ahead of the engine; the engine
// itself never branches on roles.
type RecomputePolicy interface {
	CanTriggerRecompute(usr user.User, course Course) bool
}

// DefaultRecomputePolicy: admins always; coordinators when scoped to the
// course's program; teachers when assigned to the course.
type DefaultRecomputePolicy struct{}

var _ RecomputePolicy = (*DefaultRecomputePolicy)(nil)

func (DefaultRecomputePolicy) CanTriggerRecompute(usr user.User, course Course) bool {
	if usr.IsAdmin() {
		return true
	}
	if usr.IsCoordinator() && usr.ProgramID == course.ProgramID {
		return true
	}
	if usr.IsTeacher() {
		for _, id := range course.TeacherIDs {
			if id == usr.ID {
				return true
			}
		}
	}
	return false
}
