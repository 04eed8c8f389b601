package app

const (
	msgWelcome             = "Hi! A quiz journey is waiting for you. Collect every piece of the puzzle and work out how they connect.\nRead the rules with /rules."
	msgRules               = "Questions open one after another and each has a time limit.\n\nOnce a question closes, answers are no longer accepted.\n\nOnly one answer is accepted per question, so think it over before sending it. Check your answers for typos."
	msgRegistrationPrompt  = "Please enter your last name, first name and office separated by spaces, for example: Ivanov Ivan Autumn"
	msgRegistrationRetry   = "Please enter your full name and office separated by spaces"
	msgRegistered          = "Registration successful!"
	msgRegistrationFailed  = "Registration failed. Please try again."
	msgStartFirst          = "Send /start to register for the quiz."
	msgNoActiveStage       = "There is no active question right now. Wait for the next one!"
	msgAlreadyAnswered     = "You have already answered the current question! Wait for the next one."
	msgAlreadyAnsweredNext = "You have already answered the current question! The next question opens at %s"
	msgChooseOption        = "Choose your answer:"
	msgEnterAnswer         = "Enter your answer:"
	msgStaleOption         = "That option belongs to a question that is no longer open."
	msgAnswerFailed        = "Something went wrong while processing your answer. Please try again."
	msgHintNotice          = "A hint will be available in %d minutes. Use /hint to get it."
	msgHintWait            = "The hint will be available in %d minutes"
	msgHintUnavailable     = "A hint is only available while its question is open!"
	msgStats               = "Your answers: %d\nCorrect: %d"
	msgStatusFailed        = "Could not load quiz statistics"
)

// nextStageLayout formats the opening time of the next stage.
const nextStageLayout = "15:04:05"
