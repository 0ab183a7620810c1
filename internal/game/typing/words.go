package typing

var defaultWords = []string{
	// basics
	"cat", "dog", "run", "jump", "code", "react", "type", "fast", "game", "play",
	"speed", "brain", "quick", "score", "win", "lost", "fire", "water", "earth",
	"wind", "solar", "moon", "star", "cloud", "rain", "snow", "heat", "cold",
	"light", "dark", "happy", "music", "dance", "sing", "dream", "hope", "love",
	"peace", "magic", "power", "energy", "force", "rush", "blast", "zoom",

	// animals
	"lion", "tiger", "bear", "wolf", "fox", "deer", "rabbit", "mouse", "bird", "fish",
	"shark", "whale", "dolphin", "eagle", "owl", "snake", "frog", "spider", "bee", "ant",
	"elephant", "giraffe", "zebra", "monkey", "panda", "koala", "kangaroo", "penguin",

	// colors
	"red", "blue", "green", "yellow", "orange", "purple", "pink", "black", "white", "gray",
	"brown", "gold", "silver", "bronze", "crimson", "azure", "emerald", "violet", "indigo",

	// nature
	"tree", "flower", "grass", "leaf", "branch", "root", "seed", "fruit", "berry", "nut",
	"mountain", "valley", "river", "ocean", "lake", "forest", "desert", "island", "beach", "cave",
	"volcano", "canyon", "waterfall", "meadow", "garden", "park", "jungle", "tundra", "swamp",

	// food
	"apple", "banana", "grape", "cherry", "lemon", "lime", "peach", "pear",
	"bread", "cheese", "milk", "butter", "sugar", "salt", "pepper", "honey", "jam", "cake",
	"pizza", "burger", "pasta", "rice", "soup", "salad", "cookie", "candy", "chocolate",
	"coffee", "tea", "juice", "soda", "yogurt", "ice",

	// technology
	"computer", "phone", "tablet", "laptop", "keyboard", "screen", "monitor", "camera", "speaker",
	"internet", "website", "email", "password", "username", "download", "upload", "stream", "video",
	"software", "hardware", "program", "app", "browser", "search", "click", "scroll", "swipe", "touch",

	// sports
	"football", "soccer", "tennis", "golf", "baseball", "hockey", "swimming", "cycling",
	"boxing", "karate", "yoga", "gym", "fitness", "training", "workout",
	"marathon", "sprint", "throw", "catch", "kick", "punch", "dive", "climb", "skate",

	// travel
	"car", "truck", "bus", "train", "plane", "boat", "ship", "bike", "scooter",
	"taxi", "subway", "metro", "helicopter", "rocket", "spaceship", "sailboat", "yacht",
	"drive", "fly", "sail", "ride", "walk", "jog", "hike", "travel", "journey",

	// weather
	"sunny", "cloudy", "rainy", "snowy", "windy", "stormy", "foggy", "hot", "warm", "cool",
	"freezing", "humid", "dry", "wet", "breezy", "calm", "tornado", "hurricane", "blizzard",
	"thunder", "lightning", "rainbow", "sunrise", "sunset", "dawn", "dusk", "midnight", "noon",

	// space
	"space", "planet", "sun", "mars", "jupiter", "saturn", "galaxy", "universe", "cosmos",
	"astronaut", "satellite", "orbit", "gravity", "lunar", "eclipse", "meteor", "comet",
	"asteroid", "nebula", "telescope",

	// fantasy
	"wizard", "witch", "fairy", "dragon", "unicorn", "phoenix", "elf", "dwarf", "giant",
	"castle", "tower", "dungeon", "spell", "potion", "wand", "crystal",
	"treasure", "diamond", "ruby", "sapphire", "pearl", "jewel", "crown",

	// adventure
	"adventure", "quest", "mission", "map", "compass", "path",
	"hero", "villain", "warrior", "knight", "princess", "prince", "king", "queen", "guardian",
}
